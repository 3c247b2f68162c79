package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/domain"
	logx "remindbot/pkg/logx"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

	p := domain.NewUserProfile("u1", now)
	p.Reminders = append(p.Reminders, &domain.ReminderRecord{
		ID: "u1-1", OwnerID: "u1", Content: "倒垃圾",
		FireAt: now.Add(5 * time.Minute), CreatedAt: now,
		Status: domain.StatusActive, Kind: domain.KindRelative,
	})
	if err := st.SaveOne(ctx, "u1", p); err != nil {
		t.Fatalf("SaveOne: %v", err)
	}

	users, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	got, ok := users["u1"]
	if !ok {
		t.Fatal("owner u1 missing after reload")
	}
	if len(got.Reminders) != 1 || got.Reminders[0].Content != "倒垃圾" {
		t.Fatalf("reminders lost: %+v", got.Reminders)
	}
	if !got.Reminders[0].FireAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("fire time drifted: %v", got.Reminders[0].FireAt)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	users, err := st.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(users))
	}
}

func TestFileStoreFillsDefaultsOnLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.json")
	st, _ := Open(Config{Driver: "file", Path: path}, logx.Nop())
	ctx := context.Background()

	// A profile persisted by an older build with missing collections.
	if err := st.SaveOne(ctx, "u1", &domain.UserProfile{OwnerID: "u1"}); err != nil {
		t.Fatalf("SaveOne: %v", err)
	}
	users, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	p := users["u1"]
	if p.Todos == nil || p.MonthlyTodos == nil || p.Reminders == nil {
		t.Fatal("collections not defaulted on load")
	}
	if p.MorningTime != domain.DefaultMorningTime || p.EveningTime != domain.DefaultEveningTime {
		t.Fatalf("reminder times not defaulted: %q %q", p.MorningTime, p.EveningTime)
	}
	if p.Timezone != domain.DefaultTimezone {
		t.Fatalf("timezone not defaulted: %q", p.Timezone)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "bogus", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
