package ingest

import (
	"context"
	"time"

	"github.com/lox/wxarchive/internal/log"
)

// Syncer fetches new exports. *Mirror implements it.
type Syncer interface {
	Sync(ctx context.Context) (*SyncResult, error)
}

// WarmFunc loads one month's export into the cache.
type WarmFunc func(ctx context.Context, kind Kind, month Month) error

// Scheduler keeps the archive fresh while the server runs: it mirrors new
// exports and reloads the months they touched. The current month is always
// reloaded because consoles append to it during the month.
type Scheduler struct {
	dir      *Dir
	mirror   Syncer
	warm     WarmFunc
	interval time.Duration
	now      func() time.Time
}

// NewScheduler returns a scheduler. mirror may be nil to only warm the cache.
func NewScheduler(dir *Dir, mirror Syncer, warm WarmFunc, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{dir: dir, mirror: mirror, warm: warm, interval: interval, now: time.Now}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("scheduler: shutting down")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sync and warm pass. Failures are logged; the next tick
// retries.
func (s *Scheduler) RunOnce(ctx context.Context) {
	type target struct {
		kind  Kind
		month Month
	}
	var targets []target
	seen := make(map[target]bool)
	add := func(t target) {
		if !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}

	if s.mirror != nil {
		res, err := s.mirror.Sync(ctx)
		if err != nil {
			log.Warnf("scheduler: sync: %v", err)
		} else {
			for _, name := range res.Downloaded {
				if kind, month, ok := s.dir.Classify(name); ok {
					add(target{kind, month})
				}
			}
		}
	}

	current := MonthOf(s.now())
	for kind := range s.dir.Suffixes {
		add(target{kind, current})
	}

	if s.warm == nil {
		return
	}
	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		if err := s.warm(ctx, t.kind, t.month); err != nil {
			log.Warnf("scheduler: warm %s %s: %v", t.kind, t.month, err)
		}
	}
}
