// Package router maps inbound chat text to core operations and renders the
// reply. Every dispatch returns display text; operational failures are
// logged and translated to a user-facing message.
package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmhodges/clock"

	"remindbot/internal/domain"
	"remindbot/internal/reminder"
	"remindbot/internal/state"
	"remindbot/internal/todo"
	logx "remindbot/pkg/logx"
)

const systemBusyText = "❌ 系統忙碌中，請稍後再試"

type Router struct {
	log       logx.Logger
	clk       clock.Clock
	loc       *time.Location
	st        *state.State
	reminders *reminder.Service
	todos     *todo.Service
}

func New(st *state.State, reminders *reminder.Service, todos *todo.Service, clk clock.Clock, loc *time.Location, log logx.Logger) *Router {
	return &Router{log: log, clk: clk, loc: loc, st: st, reminders: reminders, todos: todos}
}

// Dispatch handles one inbound message and returns the reply text.
// Text that matches no command is treated as a reminder expression.
func (r *Router) Dispatch(ctx context.Context, ownerID, text string) string {
	text = strings.TrimSpace(text)

	switch text {
	case "幫助", "help":
		return helpText
	case "查詢", "清單":
		return r.todos.List(ownerID)
	case "每月清單":
		return r.todos.ListMonthly(ownerID)
	case "生成本月":
		return r.materialize(ctx, ownerID)
	case "定時清單":
		return r.reminders.List(ownerID)
	case "清理定時":
		return r.cleanupReminders(ctx, ownerID)
	case "查詢時間":
		return r.timeSettings(ownerID)
	case "狀態":
		return r.status(ownerID)
	}

	// Longer prefixes first: 每月新增 must not fall into 新增.
	switch {
	case strings.HasPrefix(text, "每月新增"):
		arg := strings.TrimSpace(strings.TrimPrefix(text, "每月新增"))
		if arg == "" {
			return "❌ 請輸入事項內容，例如「每月新增 5號繳卡費」"
		}
		return r.reply(r.todos.AddMonthly(ctx, ownerID, arg))
	case strings.HasPrefix(text, "每月刪除"):
		return r.byIndex(text, "每月刪除", func(i int) (string, error) {
			return r.todos.DeleteMonthly(ctx, ownerID, i)
		})
	case strings.HasPrefix(text, "新增"):
		arg := strings.TrimSpace(strings.TrimPrefix(text, "新增"))
		if arg == "" {
			return "❌ 請輸入事項內容，例如「新增 買牛奶」"
		}
		return r.reply(r.todos.Add(ctx, ownerID, arg))
	case strings.HasPrefix(text, "刪除"):
		return r.byIndex(text, "刪除", func(i int) (string, error) {
			return r.todos.Delete(ctx, ownerID, i)
		})
	case strings.HasPrefix(text, "取消定時"):
		return r.byIndex(text, "取消定時", func(i int) (string, error) {
			return r.reminders.Cancel(ctx, ownerID, i)
		})
	case strings.HasPrefix(text, "早上時間"):
		return r.setDailyTime(ctx, ownerID, strings.TrimSpace(strings.TrimPrefix(text, "早上時間")), true)
	case strings.HasPrefix(text, "晚上時間"):
		return r.setDailyTime(ctx, ownerID, strings.TrimSpace(strings.TrimPrefix(text, "晚上時間")), false)
	}

	// Anything else is tried as a bare reminder expression.
	out, err := r.reminders.Create(ctx, ownerID, text)
	if err != nil {
		var pe *reminder.ParseError
		if errors.As(err, &pe) {
			return unknownText
		}
		return systemBusyText
	}
	return out
}

// reply renders an operation result, mapping known user errors to their own
// message and everything else to the busy text.
func (r *Router) reply(out string, err error) string {
	if err == nil {
		return out
	}
	var tie *todo.IndexError
	var rie *reminder.IndexError
	if errors.As(err, &tie) || errors.As(err, &rie) {
		return err.Error()
	}
	return systemBusyText
}

// byIndex parses the numeric argument of an index-taking command.
func (r *Router) byIndex(text, cmd string, fn func(i int) (string, error)) string {
	arg := strings.TrimSpace(strings.TrimPrefix(text, cmd))
	i, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Sprintf("❌ 請輸入編號，例如「%s 1」", cmd)
	}
	return r.reply(fn(i))
}

func (r *Router) materialize(ctx context.Context, ownerID string) string {
	added, err := r.todos.Materialize(ctx, ownerID)
	if err != nil {
		return systemBusyText
	}
	if len(added) == 0 {
		return "🔄 本月固定事項已全部在待辦清單中"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 已將 %d 項固定事項加入待辦清單：\n", len(added))
	for i, content := range added {
		fmt.Fprintf(&b, "\n%d. 📅 %s", i+1, content)
	}
	return b.String()
}

func (r *Router) cleanupReminders(ctx context.Context, ownerID string) string {
	n, err := r.reminders.CleanupExpired(ctx, ownerID)
	if err != nil {
		return systemBusyText
	}
	if n == 0 {
		return "✨ 沒有過期的定時提醒需要清理"
	}
	return fmt.Sprintf("🧹 已清理 %d 個過期的定時提醒", n)
}

func (r *Router) setDailyTime(ctx context.Context, ownerID, arg string, morning bool) string {
	if !domain.ValidHHMM(arg) {
		return "❌ 時間格式不正確，請使用 HH:MM，例如「早上時間 08:30」"
	}
	err := r.st.Update(ctx, ownerID, func(p *domain.UserProfile) error {
		if morning {
			p.MorningTime = arg
		} else {
			p.EveningTime = arg
		}
		return nil
	})
	if err != nil {
		r.log.Error("daily time update failed", logx.String("owner", ownerID), logx.Err(err))
		return systemBusyText
	}
	if morning {
		return fmt.Sprintf("🌅 已設定早上提醒時間為：%s\n💡 新時間將立即生效", arg)
	}
	return fmt.Sprintf("🌙 已設定晚上提醒時間為：%s\n💡 新時間將立即生效", arg)
}

func (r *Router) timeSettings(ownerID string) string {
	var morning, evening string
	r.st.View(ownerID, func(p *domain.UserProfile) {
		morning, evening = p.MorningTime, p.EveningTime
	})
	now := r.clk.Now().In(r.loc)
	return fmt.Sprintf("🇹🇼 台灣當前時間：%s\n⏰ 目前提醒時間設定：\n🌅 早上：%s\n🌙 晚上：%s",
		now.Format("2006/01/02 15:04"), morning, evening)
}

func (r *Router) status(ownerID string) string {
	var todos, monthly, active int
	r.st.View(ownerID, func(p *domain.UserProfile) {
		todos = len(p.Todos)
		monthly = len(p.MonthlyTodos)
		active = len(p.ActiveReminders())
	})
	return fmt.Sprintf("📊 目前狀態：\n• 待辦事項：%d 項\n• 每月固定事項：%d 項\n• 定時提醒：%d 個\n• 計時器：%d 個運作中",
		todos, monthly, active, r.reminders.Registry().Size())
}
