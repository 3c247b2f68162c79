package reminder

import (
	"context"

	"remindbot/internal/domain"
	logx "remindbot/pkg/logx"
)

// RecoveryStats summarizes one startup reconciliation pass.
type RecoveryStats struct {
	Restored int // future reminders re-armed
	Pruned   int // records past the retention window, deleted
	Overdue  int // missed while down but still in grace, left unfired
}

// Recover reconciles persisted reminder records with the (empty) registry.
// It runs once at startup, before any traffic is accepted.
//
// Missed reminders are not backfilled: a record whose fire time passed while
// the process was down stays in the store unfired until the retention window
// prunes it. Only forward-looking timers are re-armed. This avoids a
// notification storm after a long outage.
func (s *Service) Recover(ctx context.Context) RecoveryStats {
	now := s.clk.Now()
	var stats RecoveryStats

	s.st.Range(func(ownerID string, p *domain.UserProfile) {
		kept := p.Reminders[:0]
		for _, r := range p.Reminders {
			if r.Expired(now) {
				stats.Pruned++
				continue
			}
			if r.Status != domain.StatusActive {
				kept = append(kept, r)
				continue
			}
			if !r.FireAt.After(now) {
				stats.Overdue++
				kept = append(kept, r)
				continue
			}
			s.arm(ownerID, r)
			stats.Restored++
			kept = append(kept, r)
		}
		p.Reminders = kept
	})

	// Batch-persist prunes before accepting new traffic.
	if stats.Pruned > 0 {
		if err := s.st.SaveAll(ctx); err != nil {
			s.log.Error("recovery prune persist failed", logx.Err(err))
		}
	}

	s.log.Info("recovery complete",
		logx.Int("restored", stats.Restored),
		logx.Int("pruned", stats.Pruned),
		logx.Int("overdue", stats.Overdue))
	return stats
}
