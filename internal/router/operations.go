package router

import (
	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

var operations = map[types.Category][]string{
	types.CategoryCustomerJournals: {"extract", "flows", "compare", "analyze"},
	types.CategoryUIJournals:       {"events", "flows", "compare"},
}

// Operations lists the commands that consume files of category c.
// Categories with no downstream analysis return nil.
func Operations(c types.Category) []string {
	return operations[c]
}

// CombinedOperations lists the commands that need all of the given
// categories to be present together.
func CombinedOperations(present []types.Category) []string {
	has := make(map[types.Category]bool, len(present))
	for _, c := range present {
		has[c] = true
	}
	if has[types.CategoryCustomerJournals] && has[types.CategoryUIJournals] {
		return []string{"flows", "compare"}
	}
	return nil
}

// Present returns the categories of r that received at least one file
func (r *Result) Present() []types.Category {
	out := make([]types.Category, 0, len(types.Categories))
	for _, c := range types.Categories {
		if len(r.Buckets[c]) > 0 {
			out = append(out, c)
		}
	}
	return out
}
