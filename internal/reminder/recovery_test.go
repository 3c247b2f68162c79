package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"remindbot/internal/domain"
	"remindbot/internal/state"
	logx "remindbot/pkg/logx"
)

// restart builds a fresh state+service over the same store, simulating a
// process restart, and returns the restarted service.
func restart(t *testing.T, store *fakeStore, sender *fakeSender, now time.Time) *Service {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(now)
	st := state.New(store, clk, logx.Nop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return NewService(st, NewRegistry(), sender, clk, testLoc, logx.Nop())
}

func TestRecoveryReArmsFutureReminders(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _, _ := newTestService(store, &fakeSender{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u1", "30分鐘後開會"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := store.storedReminders(t, "u1")[0].ID

	// Restart 10 minutes later; 20 minutes should remain.
	restartAt := testNow.Add(10 * time.Minute)
	svc2 := restart(t, store, &fakeSender{}, restartAt)
	stats := svc2.Recover(ctx)

	if stats.Restored != 1 || stats.Pruned != 0 || stats.Overdue != 0 {
		t.Fatalf("stats = %+v, want 1 restored", stats)
	}
	if !svc2.Registry().Has(id) {
		t.Fatal("future reminder not re-armed")
	}
	fireAt, _ := svc2.Registry().FireAt(id)
	remaining := fireAt.Sub(restartAt)
	if remaining < 20*time.Minute-2*time.Second || remaining > 20*time.Minute+2*time.Second {
		t.Fatalf("remaining delay = %v, want ~20m", remaining)
	}
}

func TestRecoveryPrunesLongExpired(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _, _ := newTestService(store, &fakeSender{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u1", "5分鐘後倒垃圾"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Restart well past the retention window.
	restartAt := testNow.Add(5*time.Minute + domain.RetentionWindow + time.Hour)
	svc2 := restart(t, store, &fakeSender{}, restartAt)
	stats := svc2.Recover(ctx)

	if stats.Pruned != 1 || stats.Restored != 0 {
		t.Fatalf("stats = %+v, want 1 pruned", stats)
	}
	if svc2.Registry().Size() != 0 {
		t.Fatal("pruned reminder armed a timer")
	}
	if got := store.storedReminders(t, "u1"); len(got) != 0 {
		t.Fatalf("prune not batch-persisted: %d records remain", len(got))
	}
}

func TestRecoveryLeavesOverdueInGraceUnfired(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _, _ := newTestService(store, &fakeSender{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u1", "5分鐘後倒垃圾"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Restart 30 minutes after the fire time, still inside the 1h window.
	restartAt := testNow.Add(35 * time.Minute)
	sender := &fakeSender{}
	svc2 := restart(t, store, sender, restartAt)
	stats := svc2.Recover(ctx)

	if stats.Overdue != 1 || stats.Restored != 0 || stats.Pruned != 0 {
		t.Fatalf("stats = %+v, want 1 overdue", stats)
	}
	// Missed reminders are not backfilled on restart.
	if sender.count() != 0 {
		t.Fatalf("overdue reminder fired on recovery: %d sends", sender.count())
	}
	if svc2.Registry().Size() != 0 {
		t.Fatal("overdue reminder armed a timer")
	}
	// The record stays until the expiry sweep prunes it.
	if got := store.storedReminders(t, "u1"); len(got) != 1 {
		t.Fatalf("overdue record missing from store: %d", len(got))
	}
}

func TestRecoveryOnEmptyStore(t *testing.T) {
	t.Parallel()
	svc2 := restart(t, newFakeStore(), &fakeSender{}, testNow)
	stats := svc2.Recover(context.Background())
	if stats != (RecoveryStats{}) {
		t.Fatalf("stats = %+v, want zero", stats)
	}
}
