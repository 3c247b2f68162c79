package router

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"remindbot/internal/domain"
	"remindbot/internal/reminder"
	"remindbot/internal/state"
	"remindbot/internal/todo"
	logx "remindbot/pkg/logx"
)

var testLoc = time.FixedZone("CST", 8*3600)

var testNow = time.Date(2024, time.May, 15, 10, 0, 0, 0, testLoc)

type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemStore() *memStore { return &memStore{docs: map[string][]byte{}} }

func (f *memStore) LoadAll(ctx context.Context) (map[string]*domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := map[string]*domain.UserProfile{}
	for id, doc := range f.docs {
		p := &domain.UserProfile{}
		if err := json.Unmarshal(doc, p); err != nil {
			return nil, err
		}
		p.FillDefaults()
		users[id] = p
	}
	return users, nil
}

func (f *memStore) SaveAll(ctx context.Context, users map[string]*domain.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = map[string][]byte{}
	for id, p := range users {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		f.docs[id] = b
	}
	return nil
}

func (f *memStore) SaveOne(ctx context.Context, ownerID string, p *domain.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	f.docs[ownerID] = b
	return nil
}

func (f *memStore) Close() error { return nil }

type nopSender struct{}

func (nopSender) Send(ctx context.Context, ownerID, text string) error { return nil }

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(testNow)
	st := state.New(newMemStore(), clk, logx.Nop())
	rems := reminder.NewService(st, reminder.NewRegistry(), nopSender{}, clk, testLoc, logx.Nop())
	todos := todo.NewService(st, clk, testLoc, logx.Nop())
	return New(st, rems, todos, clk, testLoc, logx.Nop())
}

func TestDispatchTodoRoundTrip(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	ctx := context.Background()

	out := r.Dispatch(ctx, "u1", "新增 買牛奶")
	if !strings.Contains(out, "買牛奶") {
		t.Fatalf("add reply: %q", out)
	}
	out = r.Dispatch(ctx, "u1", "清單")
	if !strings.Contains(out, "1. ⭕ 買牛奶") {
		t.Fatalf("list reply: %q", out)
	}
	out = r.Dispatch(ctx, "u1", "刪除 1")
	if !strings.Contains(out, "已刪除") {
		t.Fatalf("delete reply: %q", out)
	}
	out = r.Dispatch(ctx, "u1", "查詢")
	if !strings.Contains(out, "目前沒有待辦事項") {
		t.Fatalf("empty list reply: %q", out)
	}
}

func TestDispatchMonthlyCommandsDoNotFallIntoDaily(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	ctx := context.Background()

	out := r.Dispatch(ctx, "u1", "每月新增 5號繳卡費")
	if !strings.Contains(out, "每月固定事項") {
		t.Fatalf("monthly add reply: %q", out)
	}
	// The daily list must stay empty: 每月新增 is not 新增.
	if out := r.Dispatch(ctx, "u1", "清單"); !strings.Contains(out, "目前沒有待辦事項") {
		t.Fatalf("monthly add leaked into daily todos: %q", out)
	}
	if out := r.Dispatch(ctx, "u1", "每月清單"); !strings.Contains(out, "繳卡費 (每月5號)") {
		t.Fatalf("monthly list reply: %q", out)
	}
	if out := r.Dispatch(ctx, "u1", "生成本月"); !strings.Contains(out, "繳卡費") {
		t.Fatalf("materialize reply: %q", out)
	}
	if out := r.Dispatch(ctx, "u1", "生成本月"); !strings.Contains(out, "已全部在待辦清單中") {
		t.Fatalf("repeat materialize reply: %q", out)
	}
}

func TestDispatchBareReminderExpression(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	out := r.Dispatch(context.Background(), "u1", "5分鐘後倒垃圾")
	if !strings.Contains(out, "已設定定時提醒") {
		t.Fatalf("reminder reply: %q", out)
	}
	if out := r.Dispatch(context.Background(), "u1", "定時清單"); !strings.Contains(out, "倒垃圾") {
		t.Fatalf("reminder list reply: %q", out)
	}
	if out := r.Dispatch(context.Background(), "u1", "取消定時 1"); !strings.Contains(out, "已取消") {
		t.Fatalf("cancel reply: %q", out)
	}
}

func TestDispatchIndexErrors(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	ctx := context.Background()

	if out := r.Dispatch(ctx, "u1", "刪除 3"); !strings.Contains(out, "編號不正確") {
		t.Fatalf("index error reply: %q", out)
	}
	if out := r.Dispatch(ctx, "u1", "取消定時 abc"); !strings.Contains(out, "請輸入編號") {
		t.Fatalf("non-numeric index reply: %q", out)
	}
}

func TestDispatchTimeSettings(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	ctx := context.Background()

	if out := r.Dispatch(ctx, "u1", "早上時間 08:30"); !strings.Contains(out, "08:30") {
		t.Fatalf("morning set reply: %q", out)
	}
	if out := r.Dispatch(ctx, "u1", "晚上時間 25:00"); !strings.Contains(out, "格式不正確") {
		t.Fatalf("invalid time reply: %q", out)
	}
	out := r.Dispatch(ctx, "u1", "查詢時間")
	if !strings.Contains(out, "08:30") || !strings.Contains(out, "18:00") {
		t.Fatalf("time settings reply: %q", out)
	}
}

func TestDispatchStatusAndHelp(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	ctx := context.Background()

	_ = r.Dispatch(ctx, "u1", "新增 買牛奶")
	_ = r.Dispatch(ctx, "u1", "5分鐘後倒垃圾")

	out := r.Dispatch(ctx, "u1", "狀態")
	if !strings.Contains(out, "待辦事項：1 項") || !strings.Contains(out, "定時提醒：1 個") {
		t.Fatalf("status reply: %q", out)
	}
	if out := r.Dispatch(ctx, "u1", "幫助"); !strings.Contains(out, "使用說明") {
		t.Fatalf("help reply: %q", out)
	}
}

func TestDispatchUnknownText(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	out := r.Dispatch(context.Background(), "u1", "隨便說說")
	if !strings.Contains(out, "我不太明白") {
		t.Fatalf("unknown reply: %q", out)
	}
}
