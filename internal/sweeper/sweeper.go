// Package sweeper runs the periodic background passes: the per-minute daily
// notification check, the hourly expiry cleanup, and the monthly template
// materialization. All cadences run in the single system timezone.
package sweeper

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/robfig/cron/v3"

	"remindbot/internal/domain"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/state"
	"remindbot/internal/todo"
	logx "remindbot/pkg/logx"
)

const (
	specDaily   = "* * * * *"
	specHourly  = "0 * * * *"
	specMonthly = "0 9 1 * *"
)

// maxDigestItems bounds how many to-dos one daily push lists in full.
const maxDigestItems = 5

type Service struct {
	log       logx.Logger
	clk       clock.Clock
	loc       *time.Location
	st        *state.State
	reminders *reminder.Service
	todos     *todo.Service
	sender    notifier.Sender

	mu sync.Mutex
	c  *cron.Cron
}

func New(st *state.State, reminders *reminder.Service, todos *todo.Service, sender notifier.Sender, clk clock.Clock, loc *time.Location, log logx.Logger) *Service {
	return &Service{
		log: log, clk: clk, loc: loc,
		st: st, reminders: reminders, todos: todos, sender: sender,
	}
}

// Start registers the three cadences and begins ticking. Idempotent: a
// second Start on a running sweeper is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(s.loc))
	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{specDaily, "daily-check", s.dailyTick},
		{specHourly, "expiry-sweep", s.hourlyTick},
		{specMonthly, "monthly-materialize", s.monthlyTick},
	}
	for _, j := range jobs {
		if _, err := c.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("register %s job: %w", j.name, err)
		}
	}
	c.Start()
	s.c = c
	s.log.Info("sweeper started", logx.String("tz", s.loc.String()))
	return nil
}

// Stop halts the ticker and waits for in-flight jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("sweeper stop timed out", logx.Err(ctx.Err()))
	}
	s.log.Info("sweeper stopped")
}

// RunNow executes one daily check plus one expiry sweep immediately, outside
// the cron cadence. Used by the manual trigger endpoint.
func (s *Service) RunNow() {
	s.dailyTick()
	s.hourlyTick()
}

func (s *Service) now() time.Time { return s.clk.Now().In(s.loc) }

// forEachOwner runs fn once per known owner, isolating panics so one bad
// profile cannot take down the whole pass.
func (s *Service) forEachOwner(job string, fn func(ownerID string)) {
	for _, ownerID := range s.st.Owners() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in sweep job",
						logx.String("job", job), logx.String("owner", ownerID),
						logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			fn(ownerID)
		}()
	}
}

// dailyTick fires every minute and pushes one consolidated digest to each
// owner whose morning or evening time matches the current HH:MM.
func (s *Service) dailyTick() {
	now := s.now()
	hhmm := now.Format("15:04")
	ctx := context.Background()

	s.forEachOwner("daily-check", func(ownerID string) {
		var morning, evening string
		s.st.View(ownerID, func(p *domain.UserProfile) {
			morning, evening = p.MorningTime, p.EveningTime
		})
		switch hhmm {
		case morning:
			s.pushDigest(ctx, ownerID, now, true)
		case evening:
			s.pushDigest(ctx, ownerID, now, false)
		}
	})
}

func (s *Service) pushDigest(ctx context.Context, ownerID string, now time.Time, morning bool) {
	msg := s.digest(ownerID, now, morning)
	if err := s.sender.Send(ctx, ownerID, msg); err != nil {
		s.log.Warn("daily digest push failed", logx.String("owner", ownerID), logx.Err(err))
		return
	}
	s.log.Info("daily digest pushed",
		logx.String("owner", ownerID), logx.Bool("morning", morning))
}

// digest builds the daily notification text: every undated to-do plus dated
// items due tomorrow, capped at maxDigestItems with an overflow count.
func (s *Service) digest(ownerID string, now time.Time, morning bool) string {
	due := s.todos.DueItems(ownerID, now)

	icon, greeting := "🌙", "晚安"
	if morning {
		icon, greeting = "🌅", "早安"
	}

	var b strings.Builder
	if len(due) == 0 {
		fmt.Fprintf(&b, "%s %s！🎉 太棒了！目前沒有待辦事項\n", icon, greeting)
		if morning {
			b.WriteString("💡 輸入「新增 事項名稱」來建立今天的目標")
		} else {
			b.WriteString("😴 好好休息，為明天準備新的目標！")
		}
	} else {
		fmt.Fprintf(&b, "%s %s！您有 %d 項待辦事項：\n\n", icon, greeting, len(due))
		for i, t := range due {
			if i == maxDigestItems {
				fmt.Fprintf(&b, "\n...還有 %d 項\n", len(due)-maxDigestItems)
				break
			}
			if t.HasDate {
				fmt.Fprintf(&b, "%d. ⭕ %s 📅%s\n", i+1, t.Content, t.TargetDate.Format("1/2"))
			} else {
				fmt.Fprintf(&b, "%d. ⭕ %s\n", i+1, t.Content)
			}
		}
		if morning {
			b.WriteString("\n💪 新的一天開始了！加油完成這些任務！")
		} else {
			b.WriteString("\n🌙 檢查一下今天的進度吧！記得為明天做準備！")
		}
	}
	fmt.Fprintf(&b, "\n🇹🇼 台灣時間: %s", now.Format("15:04"))
	return b.String()
}

// hourlyTick removes expired one-shot reminders and long-past dated to-dos
// for every owner. Both passes are idempotent.
func (s *Service) hourlyTick() {
	ctx := context.Background()
	s.forEachOwner("expiry-sweep", func(ownerID string) {
		if _, err := s.reminders.CleanupExpired(ctx, ownerID); err != nil {
			s.log.Warn("reminder cleanup failed", logx.String("owner", ownerID), logx.Err(err))
		}
		if _, err := s.todos.PruneDated(ctx, ownerID); err != nil {
			s.log.Warn("dated todo prune failed", logx.String("owner", ownerID), logx.Err(err))
		}
	})
}

// monthlyTick materializes every owner's monthly templates on the first of
// the month and announces what was added.
func (s *Service) monthlyTick() {
	now := s.now()
	ctx := context.Background()
	s.forEachOwner("monthly-materialize", func(ownerID string) {
		added, err := s.todos.Materialize(ctx, ownerID)
		if err != nil {
			s.log.Warn("monthly materialization failed", logx.String("owner", ownerID), logx.Err(err))
			return
		}
		if len(added) == 0 {
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "🔄 每月提醒！本月 (%s) 的固定事項：\n\n", now.Format("1月"))
		for i, content := range added {
			fmt.Fprintf(&b, "%d. 📅 %s\n", i+1, content)
		}
		b.WriteString("\n✅ 已自動加入待辦清單")
		if err := s.sender.Send(ctx, ownerID, b.String()); err != nil {
			s.log.Warn("monthly announcement push failed", logx.String("owner", ownerID), logx.Err(err))
		}
	})
}
