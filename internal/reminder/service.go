// Package reminder implements the one-shot reminder lifecycle: text goes in,
// a persisted record plus an armed timer come out, and the timer callback
// pushes the notification and finalizes the record.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"remindbot/internal/domain"
	"remindbot/internal/notifier"
	"remindbot/internal/state"
	logx "remindbot/pkg/logx"
)

const parseHint = "❌ 格式不正確，支援的提醒格式：\n" +
	"• 5分鐘後倒垃圾（1-1440分鐘）\n" +
	"• 1小時30分鐘後開會\n" +
	"• 30秒後關火（10-3600秒）\n" +
	"• 12:00倒垃圾（HH:MM）"

// errNothingToClean aborts an Update without persisting when a cleanup pass
// finds nothing expired.
var errNothingToClean = errors.New("nothing to clean")

type Service struct {
	log    logx.Logger
	clk    clock.Clock
	loc    *time.Location
	st     *state.State
	reg    *Registry
	sender notifier.Sender
}

func NewService(st *state.State, reg *Registry, sender notifier.Sender, clk clock.Clock, loc *time.Location, log logx.Logger) *Service {
	return &Service{log: log, clk: clk, loc: loc, st: st, reg: reg, sender: sender}
}

func (s *Service) now() time.Time { return s.clk.Now().In(s.loc) }

// Create parses text into a one-shot reminder, persists it, and only then
// arms the timer. A persistence failure aborts the whole operation: no
// record survives and no timer is armed.
func (s *Service) Create(ctx context.Context, ownerID, text string) (string, error) {
	now := s.now()
	in := domain.Parse(text, now)
	if in.Kind != domain.IntentRelative && in.Kind != domain.IntentClock {
		return "", &ParseError{Hint: parseHint}
	}

	kind := domain.KindRelative
	if in.Kind == domain.IntentClock {
		kind = domain.KindClock
	}
	rec := &domain.ReminderRecord{
		ID:        newID(ownerID, now),
		OwnerID:   ownerID,
		Content:   in.Content,
		FireAt:    in.FireAt,
		CreatedAt: now,
		Status:    domain.StatusActive,
		Kind:      kind,
		TimeText:  in.TimeText,
	}

	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		p.Reminders = append(p.Reminders, rec)
		return nil
	})
	if err != nil {
		s.log.Error("reminder create failed", logx.String("owner", ownerID), logx.Err(err))
		return "", err
	}

	s.arm(ownerID, rec)
	s.log.Info("reminder created",
		logx.String("owner", ownerID), logx.String("id", rec.ID),
		logx.Time("fire_at", rec.FireAt), logx.String("kind", string(kind)))

	return confirmText(rec, now), nil
}

// Cancel removes the 1-based displayIndex-th active reminder (in ascending
// fire-time order). The timer is cancelled before the record is removed; if
// persisting the removal fails, both the record and the timer are restored.
func (s *Service) Cancel(ctx context.Context, ownerID string, displayIndex int) (string, error) {
	var cancelled *domain.ReminderRecord
	var remaining int

	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		active := p.ActiveReminders()
		if displayIndex < 1 || displayIndex > len(active) {
			return &IndexError{Count: len(active)}
		}
		target := active[displayIndex-1]
		s.reg.Cancel(target.ID)
		for i, r := range p.Reminders {
			if r.ID == target.ID {
				p.Reminders = append(p.Reminders[:i], p.Reminders[i+1:]...)
				break
			}
		}
		cancelled = target
		remaining = len(active) - 1
		return nil
	})
	if err != nil {
		var ie *IndexError
		if errors.As(err, &ie) {
			return "", err
		}
		// Persistence failed after the timer was stopped: the state package
		// already rolled the record back, so re-arm to match.
		if cancelled != nil && cancelled.FireAt.After(s.now()) {
			s.arm(ownerID, cancelled)
		}
		s.log.Error("reminder cancel failed", logx.String("owner", ownerID), logx.Err(err))
		return "", err
	}

	s.log.Info("reminder cancelled", logx.String("owner", ownerID), logx.String("id", cancelled.ID))
	return fmt.Sprintf("🗑️ 已取消定時提醒：「%s」\n剩餘 %d 個定時提醒", cancelled.Content, remaining), nil
}

// List renders the owner's active reminders sorted by ascending fire time,
// with the remaining delay in whole minutes (hours+minutes once ≥60).
func (s *Service) List(ownerID string) string {
	now := s.now()
	var b strings.Builder
	s.st.View(ownerID, func(p *domain.UserProfile) {
		active := p.ActiveReminders()
		if len(active) == 0 {
			b.WriteString("⏰ 目前沒有定時提醒\n💡 輸入「5分鐘後倒垃圾」來設定定時提醒")
			return
		}
		fmt.Fprintf(&b, "⏰ 定時提醒清單 (%d 項)：\n", len(active))
		for i, r := range active {
			fmt.Fprintf(&b, "\n%d. %s\n   📅 %s (剩餘%s)\n",
				i+1, r.Content,
				r.FireAt.In(s.loc).Format("1/2 15:04"),
				domain.FormatRemaining(r.FireAt, now))
		}
		b.WriteString("\n💡 輸入「取消定時 [編號]」可取消指定提醒")
	})
	return b.String()
}

// CleanupExpired removes records whose fire time is older than the retention
// window, cancelling any still-registered timer first. Idempotent: a pass
// with nothing to clean is a no-op returning 0.
func (s *Service) CleanupExpired(ctx context.Context, ownerID string) (int, error) {
	removed := 0
	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		now := s.now()
		kept := p.Reminders[:0]
		for _, r := range p.Reminders {
			if r.Expired(now) {
				s.reg.Cancel(r.ID)
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if removed == 0 {
			return errNothingToClean
		}
		p.Reminders = kept
		return nil
	})
	if errors.Is(err, errNothingToClean) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("expired reminders cleaned", logx.String("owner", ownerID), logx.Int("removed", removed))
	}
	return removed, nil
}

// Registry exposes the live-timer registry for health reporting.
func (s *Service) Registry() *Registry { return s.reg }

// arm registers the fire timer for rec. Call only after the record is
// durably persisted.
func (s *Service) arm(ownerID string, rec *domain.ReminderRecord) {
	d := rec.FireAt.Sub(s.clk.Now())
	if d < 0 {
		d = 0
	}
	id := rec.ID
	t := time.AfterFunc(d, func() { s.fire(ownerID, id) })
	s.reg.Set(id, t, rec.FireAt)
}

// fire is the timer callback. It must never panic the process and must
// tolerate a record that was cancelled while the callback was in flight
// (safe no-op). The send failure is terminal for this one notification.
func (s *Service) fire(ownerID, id string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in reminder fire",
				logx.String("owner", ownerID), logx.String("id", id),
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	ctx := context.Background()

	var rec domain.ReminderRecord
	found := false
	s.st.View(ownerID, func(p *domain.UserProfile) {
		for _, r := range p.Reminders {
			if r.ID == id && r.Status == domain.StatusActive {
				rec = *r
				found = true
				return
			}
		}
	})
	if !found {
		// Cancelled or already resolved while this callback was queued.
		s.reg.Cancel(id)
		return
	}

	sendErr := s.sender.Send(ctx, ownerID, fireText(&rec, s.now()))

	status := domain.StatusFired
	if sendErr != nil {
		status = domain.StatusFailed
		s.log.Warn("reminder notification failed",
			logx.String("owner", ownerID), logx.String("id", id), logx.Err(sendErr))
	}
	if err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		for _, r := range p.Reminders {
			if r.ID == id {
				r.Status = status
				break
			}
		}
		return nil
	}); err != nil {
		s.log.Error("reminder status persist failed",
			logx.String("owner", ownerID), logx.String("id", id), logx.Err(err))
	}
	s.reg.Cancel(id)
	if sendErr == nil {
		s.log.Info("reminder fired", logx.String("owner", ownerID), logx.String("id", id))
	}
}

func newID(ownerID string, now time.Time) string {
	// Owner + creation time + a random fragment: unique even when two
	// creations race within the same millisecond.
	return fmt.Sprintf("%s-%d-%s", ownerID, now.UnixMilli(), uuid.NewString()[:8])
}

func confirmText(rec *domain.ReminderRecord, now time.Time) string {
	if rec.Kind == domain.KindClock {
		day := "今天"
		if rec.FireAt.YearDay() != now.YearDay() || rec.FireAt.Year() != now.Year() {
			day = "明天"
		}
		return fmt.Sprintf("🕐 已設定時間提醒：「%s」\n⏰ %s %s 提醒\n📅 提醒時間：%s",
			rec.Content, day, rec.TimeText, rec.FireAt.Format("2006/01/02 15:04"))
	}
	return fmt.Sprintf("⏰ 已設定定時提醒：「%s」\n🕐 將在 %s 後提醒您\n📅 提醒時間：%s",
		rec.Content, rec.TimeText, rec.FireAt.Format("2006/01/02 15:04"))
}

func fireText(rec *domain.ReminderRecord, now time.Time) string {
	return fmt.Sprintf("⏰ 提醒時間到了！\n\n🎯 提醒事項：%s\n🕐 原設定：%s\n📅 提醒時間：%s",
		rec.Content, rec.TimeText, now.Format("2006/01/02 15:04"))
}
