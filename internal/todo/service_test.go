package todo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"remindbot/internal/domain"
	"remindbot/internal/state"
	logx "remindbot/pkg/logx"
)

var testLoc = time.FixedZone("CST", 8*3600)

var testNow = time.Date(2024, time.May, 15, 10, 0, 0, 0, testLoc)

type fakeStore struct {
	mu          sync.Mutex
	docs        map[string][]byte
	failSaveOne bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]byte{}}
}

func (f *fakeStore) LoadAll(ctx context.Context) (map[string]*domain.UserProfile, error) {
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

func (f *fakeStore) SaveAll(ctx context.Context, users map[string]*domain.UserProfile) error {
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

func (f *fakeStore) SaveOne(ctx context.Context, ownerID string, p *domain.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaveOne {
		return errors.New("injected save-one failure")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	f.docs[ownerID] = b
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) storedTodos(t *testing.T, ownerID string) []*domain.RecurringToDo {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[ownerID]
	if !ok {
		return nil
	}
	p := &domain.UserProfile{}
	if err := json.Unmarshal(doc, p); err != nil {
		t.Fatalf("stored doc unreadable: %v", err)
	}
	return p.Todos
}

func newTestService(store *fakeStore) (*Service, clock.FakeClock) {
	clk := clock.NewFake()
	clk.Set(testNow)
	st := state.New(store, clk, logx.Nop())
	return NewService(st, clk, testLoc, logx.Nop()), clk
}

func TestAddUndated(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store)

	msg, err := svc.Add(context.Background(), "u1", "買牛奶")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.Contains(msg, "買牛奶") {
		t.Fatalf("confirmation missing content: %q", msg)
	}
	todos := store.storedTodos(t, "u1")
	if len(todos) != 1 || todos[0].HasDate {
		t.Fatalf("want one undated todo, got %+v", todos)
	}
}

func TestAddWithCalendarDate(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store)

	msg, err := svc.Add(context.Background(), "u1", "8/9號繳卡費")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Dated items notify only on the preceding day; the confirmation must
	// not promise a same-day reminder.
	if !strings.Contains(msg, "前一天") || strings.Contains(msg, "當天") {
		t.Fatalf("confirmation does not match the due rule: %q", msg)
	}
	todos := store.storedTodos(t, "u1")
	if !todos[0].HasDate || todos[0].Content != "繳卡費" {
		t.Fatalf("date not parsed: %+v", todos[0])
	}
	want := time.Date(2024, time.August, 9, 0, 0, 0, 0, testLoc)
	if !todos[0].TargetDate.Equal(want) {
		t.Fatalf("TargetDate = %v, want %v", todos[0].TargetDate, want)
	}
}

func TestAddWithDayOnlyRollsToNextMonth(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store)

	// testNow is May 15; a bare "5號" already passed, so June 5.
	if _, err := svc.Add(context.Background(), "u1", "5號繳房租"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	todos := store.storedTodos(t, "u1")
	want := time.Date(2024, time.June, 5, 0, 0, 0, 0, testLoc)
	if !todos[0].HasDate || !todos[0].TargetDate.Equal(want) {
		t.Fatalf("TargetDate = %v, want %v", todos[0].TargetDate, want)
	}

	// A day still ahead stays in the current month.
	if _, err := svc.Add(context.Background(), "u1", "20號繳電費"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	todos = store.storedTodos(t, "u1")
	want = time.Date(2024, time.May, 20, 0, 0, 0, 0, testLoc)
	if !todos[1].TargetDate.Equal(want) {
		t.Fatalf("TargetDate = %v, want %v", todos[1].TargetDate, want)
	}
}

func TestDeleteByIndex(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, _ = svc.Add(ctx, "u1", "買牛奶")
	_, _ = svc.Add(ctx, "u1", "倒垃圾")

	msg, err := svc.Delete(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !strings.Contains(msg, "買牛奶") {
		t.Fatalf("deleted the wrong item: %q", msg)
	}
	todos := store.storedTodos(t, "u1")
	if len(todos) != 1 || todos[0].Content != "倒垃圾" {
		t.Fatalf("store not updated: %+v", todos)
	}

	_, err = svc.Delete(ctx, "u1", 5)
	var ie *IndexError
	if !errors.As(err, &ie) || ie.Count != 1 {
		t.Fatalf("want IndexError{1}, got %v", err)
	}
}

func TestDeleteRollsBackOnPersistenceFailure(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, _ = svc.Add(ctx, "u1", "買牛奶")
	store.failSaveOne = true

	if _, err := svc.Delete(ctx, "u1", 1); err == nil {
		t.Fatal("expected persistence error")
	}
	if out := svc.List("u1"); !strings.Contains(out, "買牛奶") {
		t.Fatalf("item missing after rollback: %q", out)
	}
}

func TestMonthlyTemplateParsing(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.AddMonthly(ctx, "u1", "每月5號繳卡費"); err != nil {
		t.Fatalf("AddMonthly: %v", err)
	}
	if _, err := svc.AddMonthly(ctx, "u1", "換濾心"); err != nil {
		t.Fatalf("AddMonthly: %v", err)
	}

	out := svc.ListMonthly("u1")
	if !strings.Contains(out, "繳卡費 (每月5號)") {
		t.Fatalf("fixed-date template missing:\n%s", out)
	}
	if !strings.Contains(out, "換濾心 (手動)") {
		t.Fatalf("manual template missing:\n%s", out)
	}
}

func TestMaterializeDedupsWithinMonth(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, _ = svc.AddMonthly(ctx, "u1", "每月5號繳卡費")
	_, _ = svc.AddMonthly(ctx, "u1", "換濾心")

	added, err := svc.Materialize(ctx, "u1")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("added = %v, want 2 items", added)
	}
	todos := store.storedTodos(t, "u1")
	if len(todos) != 2 {
		t.Fatalf("stored todos = %d, want 2", len(todos))
	}
	want := time.Date(2024, time.May, 5, 0, 0, 0, 0, testLoc)
	var dated *domain.RecurringToDo
	for _, td := range todos {
		if td.HasDate {
			dated = td
		}
	}
	if dated == nil || !dated.TargetDate.Equal(want) {
		t.Fatalf("fixed-date item = %+v, want target %v", dated, want)
	}

	// Second run in the same month adds nothing.
	added, err = svc.Materialize(ctx, "u1")
	if err != nil || len(added) != 0 {
		t.Fatalf("second run = (%v, %v), want no additions", added, err)
	}
}

func TestMaterializeClampsDayToMonthEnd(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, clk := newTestService(store)
	ctx := context.Background()
	clk.Set(time.Date(2024, time.April, 1, 9, 0, 0, 0, testLoc))

	_, _ = svc.AddMonthly(ctx, "u1", "每月31號對帳")

	if _, err := svc.Materialize(ctx, "u1"); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	todos := store.storedTodos(t, "u1")
	want := time.Date(2024, time.April, 30, 0, 0, 0, 0, testLoc)
	if !todos[0].TargetDate.Equal(want) {
		t.Fatalf("TargetDate = %v, want clamped %v", todos[0].TargetDate, want)
	}
}

func TestDueItems(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, _ = svc.Add(ctx, "u1", "買牛奶")       // undated: due every day
	_, _ = svc.Add(ctx, "u1", "5/16號繳卡費") // dated: due only on 5/15
	_, _ = svc.Add(ctx, "u1", "5/20號繳電費") // dated: not yet

	due := svc.DueItems("u1", testNow)
	if len(due) != 2 {
		t.Fatalf("due = %d items, want 2", len(due))
	}
	var contents []string
	for _, d := range due {
		contents = append(contents, d.Content)
	}
	joined := strings.Join(contents, ",")
	if !strings.Contains(joined, "買牛奶") || !strings.Contains(joined, "繳卡費") {
		t.Fatalf("due = %v", contents)
	}
}

func TestPruneDated(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, clk := newTestService(store)
	ctx := context.Background()

	_, _ = svc.Add(ctx, "u1", "買牛奶")
	_, _ = svc.Add(ctx, "u1", "5/16號繳卡費")

	// Within the window: nothing pruned.
	n, err := svc.PruneDated(ctx, "u1")
	if err != nil || n != 0 {
		t.Fatalf("early prune = (%d, %v), want (0, nil)", n, err)
	}

	clk.Add(domain.DatedRetention + 48*time.Hour)
	n, err = svc.PruneDated(ctx, "u1")
	if err != nil {
		t.Fatalf("PruneDated: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	todos := store.storedTodos(t, "u1")
	if len(todos) != 1 || todos[0].Content != "買牛奶" {
		t.Fatalf("undated item must survive: %+v", todos)
	}
}
