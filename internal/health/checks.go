package health

import (
	"context"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/output"
)

// RunStatus remembers the outcome of the latest analysis run
type RunStatus struct {
	mu           sync.RWMutex
	runID        string
	finishedAt   time.Time
	transactions int
	err          error
}

// Record stores the outcome of a finished run
func (s *RunStatus) Record(runID string, transactions int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.transactions = transactions
	s.err = err
	s.finishedAt = time.Now()
}

// Check is degraded until a run finishes and unhealthy after a failed one
func (s *RunStatus) Check() HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		s.mu.RLock()
		defer s.mu.RUnlock()

		if s.finishedAt.IsZero() {
			return ComponentHealth{Status: StatusDegraded, Message: "no run completed yet"}
		}

		metadata := map[string]interface{}{
			"run_id":       s.runID,
			"finished_at":  s.finishedAt,
			"transactions": s.transactions,
		}
		if s.err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: s.err.Error(), Metadata: metadata}
		}
		return ComponentHealth{Status: StatusHealthy, Message: "last run succeeded", Metadata: metadata}
	}
}

// OutputCheck is degraded while the output's latest failure is newer than its latest send
func OutputCheck(out output.Output) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		m := out.Metrics()
		metadata := map[string]interface{}{
			"records_sent":   m.RecordsSent,
			"records_failed": m.RecordsFailed,
			"retries":        m.RetryCount,
		}
		if !m.LastErrorTime.IsZero() && m.LastErrorTime.After(m.LastSendTime) {
			return ComponentHealth{Status: StatusDegraded, Message: m.LastError, Metadata: metadata}
		}
		return ComponentHealth{Status: StatusHealthy, Message: out.Name() + " delivering", Metadata: metadata}
	}
}
