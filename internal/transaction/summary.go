package transaction

import (
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// Summary holds aggregate statistics over extracted transactions
type Summary struct {
	Total        int      `json:"total_transactions"`
	Successful   int      `json:"successful"`
	Unsuccessful int      `json:"unsuccessful"`
	Unknown      int      `json:"unknown"`
	UniqueTypes  int      `json:"unique_types"`
	UniqueFiles  int      `json:"unique_files"`
	Types        []string `json:"transaction_types"`
}

// Summarize counts outcomes, types and source files. Types are listed in
// first-seen order.
func Summarize(txns []types.Transaction) Summary {
	s := Summary{Total: len(txns), Types: []string{}}
	seenTypes := make(map[string]bool)
	seenFiles := make(map[string]bool)

	for _, t := range txns {
		switch t.EndState {
		case types.EndStateSuccessful:
			s.Successful++
		case types.EndStateUnsuccessful:
			s.Unsuccessful++
		default:
			s.Unknown++
		}
		if !seenTypes[t.Type] {
			seenTypes[t.Type] = true
			s.Types = append(s.Types, t.Type)
		}
		seenFiles[t.SourceFile] = true
	}

	s.UniqueTypes = len(s.Types)
	s.UniqueFiles = len(seenFiles)
	return s
}

// Find returns the transaction with id
func Find(txns []types.Transaction, id string) (*types.Transaction, bool) {
	for i := range txns {
		if txns[i].ID == id {
			return &txns[i], true
		}
	}
	return nil, false
}

// Records converts transactions to their serialized form
func Records(txns []types.Transaction) []types.TransactionRecord {
	out := make([]types.TransactionRecord, len(txns))
	for i := range txns {
		out[i] = txns[i].Record()
	}
	return out
}
