package ingest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

type fakeSyncer struct {
	res *SyncResult
	err error
}

func (f fakeSyncer) Sync(context.Context) (*SyncResult, error) { return f.res, f.err }

func TestSchedulerRunOnce(t *testing.T) {
	dir := NewDir(t.TempDir(), nil)
	var warmed []string
	warm := func(_ context.Context, kind Kind, month Month) error {
		warmed = append(warmed, string(kind)+"/"+month.String())
		return nil
	}

	sync := fakeSyncer{res: &SyncResult{Downloaded: []string{"202507A.CSV", "202508A.CSV", "notes.txt"}}}
	s := NewScheduler(dir, sync, warm, time.Minute)
	s.now = func() time.Time { return time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC) }

	s.RunOnce(context.Background())

	sort.Strings(warmed)
	want := []string{"channels/202508", "main/202507", "main/202508"}
	if len(warmed) != len(want) {
		t.Fatalf("warmed = %v, want %v", warmed, want)
	}
	for i := range want {
		if warmed[i] != want[i] {
			t.Errorf("warmed[%d] = %s, want %s", i, warmed[i], want[i])
		}
	}
}

func TestSchedulerSyncFailureStillWarms(t *testing.T) {
	dir := NewDir(t.TempDir(), map[Kind]string{KindMain: "A"})
	var calls int
	warm := func(context.Context, Kind, Month) error {
		calls++
		return errors.New("locked")
	}

	s := NewScheduler(dir, fakeSyncer{err: errors.New("connection refused")}, warm, 0)
	if s.interval != 15*time.Minute {
		t.Errorf("default interval = %v", s.interval)
	}
	s.RunOnce(context.Background())
	if calls != 1 {
		t.Errorf("warm calls = %d, want 1", calls)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	s := NewScheduler(NewDir(t.TempDir(), nil), nil, nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
