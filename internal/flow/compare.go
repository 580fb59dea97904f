package flow

import (
	"errors"
	"sort"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// ErrNilTransaction is returned when a comparison is missing one of its sides
var ErrNilTransaction = errors.New("transaction is nil")

// Side is one transaction of a comparison
type Side struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	EndState    types.EndState   `json:"end_state"`
	SourceFile  string           `json:"source_file"`
	Duration    time.Duration    `json:"duration"`
	HasDuration bool             `json:"has_duration"`
	Flow        types.ScreenFlow `json:"flow"`
	Steps       int              `json:"steps"`
}

// Comparison holds the measured differences between two transactions
type Comparison struct {
	A Side `json:"a"`
	B Side `json:"b"`

	// DurationDiff is B minus A, set only when both durations are known
	DurationDiff    time.Duration `json:"duration_diff"`
	HasDurationDiff bool          `json:"has_duration_diff"`

	// StepDiff is B's step count minus A's
	StepDiff int `json:"step_diff"`

	// Screen sets are filled only when both sides have flow data
	ScreensCompared bool     `json:"screens_compared"`
	Common          []string `json:"common"`
	OnlyA           []string `json:"only_a"`
	OnlyB           []string `json:"only_b"`
	TotalUnique     int      `json:"total_unique"`

	SameSource bool                   `json:"same_source"`
	Alignment  *types.AlignmentResult `json:"alignment"`
}

func newSide(txn *types.Transaction, flow types.ScreenFlow) Side {
	s := Side{
		ID:         txn.ID,
		Type:       txn.Type,
		EndState:   txn.EndState,
		SourceFile: txn.SourceFile,
		Flow:       flow,
	}
	s.Duration, s.HasDuration = txn.Duration()
	if !flow.Empty() {
		s.Steps = len(flow)
	}
	return s
}

// Compare correlates both transactions against events and compares them
func (a *Aligner) Compare(txnA, txnB *types.Transaction, events []types.UiEvent) (*Comparison, error) {
	if txnA == nil || txnB == nil {
		return nil, ErrNilTransaction
	}
	return a.CompareFlows(txnA, txnB, ForTransaction(events, txnA), ForTransaction(events, txnB))
}

// CompareFlows compares two transactions whose flows are already known
func (a *Aligner) CompareFlows(txnA, txnB *types.Transaction, flowA, flowB types.ScreenFlow) (*Comparison, error) {
	if txnA == nil || txnB == nil {
		return nil, ErrNilTransaction
	}
	if len(flowA) == 0 {
		flowA = types.ScreenFlow{types.NoFlowData}
	}
	if len(flowB) == 0 {
		flowB = types.ScreenFlow{types.NoFlowData}
	}

	alignment, err := a.Align(flowA, flowB)
	if err != nil {
		return nil, err
	}

	c := &Comparison{
		A:          newSide(txnA, flowA),
		B:          newSide(txnB, flowB),
		SameSource: txnA.SourceFile == txnB.SourceFile,
		Alignment:  alignment,
	}
	c.StepDiff = c.B.Steps - c.A.Steps
	if c.A.HasDuration && c.B.HasDuration {
		c.DurationDiff = c.B.Duration - c.A.Duration
		c.HasDurationDiff = true
	}

	if !flowA.Empty() && !flowB.Empty() {
		c.ScreensCompared = true
		setA, setB := toSet(flowA), toSet(flowB)
		c.Common = make([]string, 0)
		c.OnlyA = make([]string, 0)
		c.OnlyB = make([]string, 0)
		for s := range setA {
			if setB[s] {
				c.Common = append(c.Common, s)
			} else {
				c.OnlyA = append(c.OnlyA, s)
			}
		}
		for s := range setB {
			if !setA[s] {
				c.OnlyB = append(c.OnlyB, s)
			}
		}
		sort.Strings(c.Common)
		sort.Strings(c.OnlyA)
		sort.Strings(c.OnlyB)
		c.TotalUnique = len(c.Common) + len(c.OnlyA) + len(c.OnlyB)
	}
	return c, nil
}

func toSet(flow types.ScreenFlow) map[string]bool {
	set := make(map[string]bool, len(flow))
	for _, s := range flow {
		set[s] = true
	}
	return set
}
