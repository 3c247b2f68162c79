// Package todo manages recurring to-do items and the monthly templates that
// materialize into them. Unlike reminders, to-dos carry no timers: the
// sweeper evaluates their due rules once per daily notification.
package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"remindbot/internal/domain"
	"remindbot/internal/state"
	logx "remindbot/pkg/logx"
)

// IndexError reports a 1-based display index outside the current list.
type IndexError struct {
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("❌ 編號不正確，請輸入 1 到 %d 之間的數字", e.Count)
}

// errNoChanges aborts an Update without persisting when a materialization or
// prune pass leaves the profile untouched.
var errNoChanges = errors.New("no changes")

type Service struct {
	log logx.Logger
	clk clock.Clock
	loc *time.Location
	st  *state.State
}

func NewService(st *state.State, clk clock.Clock, loc *time.Location, log logx.Logger) *Service {
	return &Service{log: log, clk: clk, loc: loc, st: st}
}

func (s *Service) now() time.Time { return s.clk.Now().In(s.loc) }

// Add creates a to-do from chat text. A leading or trailing calendar phrase
// (8/9號繳卡費, 繳卡費9號) makes it a dated item with the date rolled forward
// past today; anything else becomes an undated item repeated daily.
func (s *Service) Add(ctx context.Context, ownerID, text string) (string, error) {
	now := s.now()
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty todo content")
	}

	item := &domain.RecurringToDo{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Content:   text,
		CreatedAt: now,
	}
	in := domain.Parse(text, now)
	switch in.Kind {
	case domain.IntentCalendarDate:
		item.Content = in.Content
		item.HasDate = true
		item.TargetDate = in.TargetDate
	case domain.IntentMonthlyDay:
		// A bare day number means this month, rolled forward once past.
		item.Content = in.Content
		item.HasDate = true
		target := time.Date(now.Year(), now.Month(), in.Day, 0, 0, 0, 0, s.loc)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
		if target.Before(today) {
			target = target.AddDate(0, 1, 0)
		}
		item.TargetDate = target
	}

	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		p.Todos = append(p.Todos, item)
		return nil
	})
	if err != nil {
		s.log.Error("todo add failed", logx.String("owner", ownerID), logx.Err(err))
		return "", err
	}

	s.log.Info("todo added", logx.String("owner", ownerID), logx.String("id", item.ID),
		logx.Bool("dated", item.HasDate))
	if item.HasDate {
		return fmt.Sprintf("✅ 已新增待辦事項：「%s」\n📅 目標日期：%s\n💡 前一天早晚都會提醒",
			item.Content, item.TargetDate.Format("2006/01/02")), nil
	}
	return fmt.Sprintf("✅ 已新增待辦事項：「%s」\n💡 每天早晚都會提醒，完成後記得刪除", item.Content), nil
}

// Delete removes the 1-based displayIndex-th to-do in list order. A failed
// persist rolls the in-memory list back.
func (s *Service) Delete(ctx context.Context, ownerID string, displayIndex int) (string, error) {
	var removed *domain.RecurringToDo
	var remaining int

	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		if displayIndex < 1 || displayIndex > len(p.Todos) {
			return &IndexError{Count: len(p.Todos)}
		}
		removed = p.Todos[displayIndex-1]
		p.Todos = append(p.Todos[:displayIndex-1], p.Todos[displayIndex:]...)
		remaining = len(p.Todos)
		return nil
	})
	if err != nil {
		var ie *IndexError
		if !errors.As(err, &ie) {
			s.log.Error("todo delete failed", logx.String("owner", ownerID), logx.Err(err))
		}
		return "", err
	}

	s.log.Info("todo deleted", logx.String("owner", ownerID), logx.String("id", removed.ID))
	return fmt.Sprintf("🗑️ 已刪除待辦事項：「%s」\n剩餘 %d 項待辦事項", removed.Content, remaining), nil
}

// List renders the owner's to-dos in insertion order, the same order Delete
// indexes against.
func (s *Service) List(ownerID string) string {
	var b strings.Builder
	s.st.View(ownerID, func(p *domain.UserProfile) {
		if len(p.Todos) == 0 {
			b.WriteString("📋 目前沒有待辦事項\n💡 輸入「新增 事項名稱」來建立待辦事項")
			return
		}
		fmt.Fprintf(&b, "📋 待辦事項清單 (%d 項)：\n", len(p.Todos))
		for i, t := range p.Todos {
			if t.HasDate {
				fmt.Fprintf(&b, "\n%d. ⭕ %s 📅%s", i+1, t.Content, t.TargetDate.Format("2006/01/02"))
			} else {
				fmt.Fprintf(&b, "\n%d. ⭕ %s", i+1, t.Content)
			}
		}
		b.WriteString("\n\n💡 輸入「刪除 [編號]」可刪除指定事項")
	})
	return b.String()
}

// AddMonthly creates a monthly template. Text with a day phrase (5號繳卡費,
// 每月5號繳卡費) becomes a fixed-date template; without one it is a manual
// template that only 生成本月 materializes.
func (s *Service) AddMonthly(ctx context.Context, ownerID, text string) (string, error) {
	now := s.now()
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty monthly todo content")
	}

	tpl := &domain.MonthlyTemplate{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Content:   text,
		Enabled:   true,
		CreatedAt: now,
	}
	if in := domain.Parse(text, now); in.Kind == domain.IntentMonthlyDay {
		tpl.Content = in.Content
		tpl.Day = in.Day
		tpl.HasFixedDate = true
	}

	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		p.MonthlyTodos = append(p.MonthlyTodos, tpl)
		return nil
	})
	if err != nil {
		s.log.Error("monthly template add failed", logx.String("owner", ownerID), logx.Err(err))
		return "", err
	}

	s.log.Info("monthly template added", logx.String("owner", ownerID),
		logx.String("id", tpl.ID), logx.Bool("fixed_date", tpl.HasFixedDate))
	if tpl.HasFixedDate {
		return fmt.Sprintf("🔄 已新增每月固定事項：「%s」\n📅 每月 %d 號自動加入待辦清單", tpl.Content, tpl.Day), nil
	}
	return fmt.Sprintf("🔄 已新增每月固定事項：「%s」\n💡 輸入「生成本月」手動加入待辦清單", tpl.Content), nil
}

// DeleteMonthly removes the 1-based displayIndex-th template in list order.
func (s *Service) DeleteMonthly(ctx context.Context, ownerID string, displayIndex int) (string, error) {
	var removed *domain.MonthlyTemplate

	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		if displayIndex < 1 || displayIndex > len(p.MonthlyTodos) {
			return &IndexError{Count: len(p.MonthlyTodos)}
		}
		removed = p.MonthlyTodos[displayIndex-1]
		p.MonthlyTodos = append(p.MonthlyTodos[:displayIndex-1], p.MonthlyTodos[displayIndex:]...)
		return nil
	})
	if err != nil {
		var ie *IndexError
		if !errors.As(err, &ie) {
			s.log.Error("monthly template delete failed", logx.String("owner", ownerID), logx.Err(err))
		}
		return "", err
	}

	s.log.Info("monthly template deleted", logx.String("owner", ownerID), logx.String("id", removed.ID))
	return fmt.Sprintf("🗑️ 已刪除每月固定事項：「%s」", removed.Content), nil
}

// ListMonthly renders the owner's monthly templates.
func (s *Service) ListMonthly(ownerID string) string {
	var b strings.Builder
	s.st.View(ownerID, func(p *domain.UserProfile) {
		if len(p.MonthlyTodos) == 0 {
			b.WriteString("🔄 目前沒有每月固定事項\n💡 輸入「每月新增 5號繳卡費」來建立固定事項")
			return
		}
		fmt.Fprintf(&b, "🔄 每月固定事項 (%d 項)：\n", len(p.MonthlyTodos))
		for i, t := range p.MonthlyTodos {
			if t.HasFixedDate {
				fmt.Fprintf(&b, "\n%d. %s (每月%d號)", i+1, t.Content, t.Day)
			} else {
				fmt.Fprintf(&b, "\n%d. %s (手動)", i+1, t.Content)
			}
		}
		b.WriteString("\n\n💡 輸入「生成本月」將固定事項加入待辦清單")
	})
	return b.String()
}

// Materialize instantiates every enabled template into the to-do list for the
// current month and returns the contents added. Fixed-date templates become
// dated items on this month's day (clamped to the month's last day); manual
// templates become undated items. An item already present for the same
// content and date is skipped, so repeated runs within a month add nothing.
func (s *Service) Materialize(ctx context.Context, ownerID string) ([]string, error) {
	now := s.now()
	var added []string

	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		added = added[:0]
		for _, tpl := range p.MonthlyTodos {
			if !tpl.Enabled {
				continue
			}
			item := &domain.RecurringToDo{
				ID:        uuid.NewString(),
				OwnerID:   ownerID,
				Content:   tpl.Content,
				CreatedAt: now,
			}
			if tpl.HasFixedDate {
				item.HasDate = true
				item.TargetDate = monthDay(now, tpl.Day, s.loc)
			}
			if hasMaterialized(p.Todos, item) {
				continue
			}
			p.Todos = append(p.Todos, item)
			added = append(added, tpl.Content)
		}
		if len(added) == 0 {
			return errNoChanges
		}
		return nil
	})
	if errors.Is(err, errNoChanges) {
		return nil, nil
	}
	if err != nil {
		s.log.Error("monthly materialization failed", logx.String("owner", ownerID), logx.Err(err))
		return nil, err
	}

	s.log.Info("monthly templates materialized",
		logx.String("owner", ownerID), logx.Int("added", len(added)))
	return added, nil
}

// PruneDated removes dated items whose target date lies more than the
// retention window in the past. Undated items are never pruned.
func (s *Service) PruneDated(ctx context.Context, ownerID string) (int, error) {
	removed := 0
	err := s.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		cutoff := s.now().Add(-domain.DatedRetention)
		kept := p.Todos[:0]
		for _, t := range p.Todos {
			if t.HasDate && t.TargetDate.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		if removed == 0 {
			return errNoChanges
		}
		p.Todos = kept
		return nil
	})
	if errors.Is(err, errNoChanges) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s.log.Info("dated todos pruned", logx.String("owner", ownerID), logx.Int("removed", removed))
	return removed, nil
}

// DueItems returns the to-dos that belong in the daily notification for the
// given day: every undated item, plus dated items whose target date is the
// day after (the advance warning).
func (s *Service) DueItems(ownerID string, day time.Time) []*domain.RecurringToDo {
	var due []*domain.RecurringToDo
	s.st.View(ownerID, func(p *domain.UserProfile) {
		for _, t := range p.Todos {
			if t.DueOn(day) {
				c := *t
				due = append(due, &c)
			}
		}
	})
	return due
}

// monthDay resolves day-of-month within now's month, clamping past the month
// end (每月31號 in April lands on the 30th).
func monthDay(now time.Time, day int, loc *time.Location) time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, loc)
}

// hasMaterialized reports whether an equivalent item already exists: same
// content and, for dated items, the same calendar date.
func hasMaterialized(todos []*domain.RecurringToDo, item *domain.RecurringToDo) bool {
	for _, t := range todos {
		if t.Content != item.Content || t.HasDate != item.HasDate {
			continue
		}
		if !t.HasDate {
			return true
		}
		y1, m1, d1 := t.TargetDate.Date()
		y2, m2, d2 := item.TargetDate.Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			return true
		}
	}
	return false
}
