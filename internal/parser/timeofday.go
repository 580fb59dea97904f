package parser

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/therealutkarshpriyadarshi/journalscope/pkg/types"
)

var clockRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})$`)

// ParseTimeOfDay parses an HH:MM:SS clock reading
func ParseTimeOfDay(s string) (types.TimeOfDay, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid time of day: %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	if h > 23 || min > 59 || sec > 59 {
		return 0, fmt.Errorf("time of day out of range: %q", s)
	}
	return types.NewTimeOfDay(h, min, sec), nil
}
