package flow

import (
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

// DefaultMaxLength caps each side of an alignment
const DefaultMaxLength = 500

// ErrFlowTooLong is returned when a flow exceeds the aligner's length cap
var ErrFlowTooLong = errors.New("flow exceeds maximum alignment length")

// Aligner computes longest-common-subsequence alignments between screen flows
type Aligner struct {
	maxLength int
}

// NewAligner creates an aligner. A non-positive maxLength uses DefaultMaxLength.
func NewAligner(maxLength int) *Aligner {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Aligner{maxLength: maxLength}
}

// MaxLength returns the per-side cap
func (a *Aligner) MaxLength() int {
	return a.maxLength
}

// Align aligns two flows, refusing inputs longer than the cap
func (a *Aligner) Align(flowA, flowB types.ScreenFlow) (*types.AlignmentResult, error) {
	if len(flowA) > a.maxLength {
		return nil, fmt.Errorf("%w: side A has %d steps (max %d)", ErrFlowTooLong, len(flowA), a.maxLength)
	}
	if len(flowB) > a.maxLength {
		return nil, fmt.Errorf("%w: side B has %d steps (max %d)", ErrFlowTooLong, len(flowB), a.maxLength)
	}
	return Align(flowA, flowB), nil
}

// Align marks the positions of flowA and flowB that take part in a longest
// common subsequence. Screens compare by exact string equality. When the
// backtrack can move up or left with equal table values it moves up,
// advancing past the current A entry.
func Align(flowA, flowB types.ScreenFlow) *types.AlignmentResult {
	n, m := len(flowA), len(flowB)
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch {
			case flowA[i-1] == flowB[j-1]:
				table[i][j] = table[i-1][j-1] + 1
			case table[i-1][j] >= table[i][j-1]:
				table[i][j] = table[i-1][j]
			default:
				table[i][j] = table[i][j-1]
			}
		}
	}

	result := &types.AlignmentResult{
		A:     flowA,
		B:     flowB,
		MaskA: make([]bool, n),
		MaskB: make([]bool, m),
	}
	i, j := n, m
	for i > 0 && j > 0 {
		switch {
		case flowA[i-1] == flowB[j-1]:
			result.MaskA[i-1] = true
			result.MaskB[j-1] = true
			i--
			j--
		case table[i-1][j] >= table[i][j-1]:
			i--
		default:
			j--
		}
	}
	return result
}
