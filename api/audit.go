/*
audit.go - Scheduled download-counter audit

PURPOSE:
  Every successful support increments the track's download counter in the
  same transaction that appends the ledger entry, so a track's counter can
  never be lower than its entry count. The auditor checks that invariant
  across the catalog and reports tracks that violate it.

DESIGN:
  - cron schedule (robfig/cron), "@every 1h" by default
  - each run fans out over tracks on a bounded pond worker pool
  - read-only: mismatches are logged and returned, never repaired

USAGE:
  auditor := NewAuditor(store, log)
  auditor.Start("@every 1h")
  // ... later
  auditor.Stop()

SEE ALSO:
  - market/ledger.go: RecordSupport
  - cmd/server/main.go: `audit` subcommand runs RunOnce
*/
package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/fanfund/market"
)

const defaultAuditWorkers = 4

// AuditMismatch is a track whose counter is below its entry count.
type AuditMismatch struct {
	TrackID   market.TrackID
	Title     string
	Downloads int64
	Entries   int
}

// AuditReport summarizes one run.
type AuditReport struct {
	StartedAt  time.Time
	Duration   time.Duration
	Checked    int
	Failed     int
	Mismatches []AuditMismatch
}

// OK reports whether every checked track passed.
func (r AuditReport) OK() bool { return len(r.Mismatches) == 0 && r.Failed == 0 }

// Auditor checks download counters against the ledger.
type Auditor struct {
	Store   market.Store
	Workers int
	Log     *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewAuditor(store market.Store, log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{Store: store, Workers: defaultAuditWorkers, Log: log}
}

// Start schedules RunOnce. An empty schedule leaves the auditor idle.
func (a *Auditor) Start(schedule string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if schedule == "" {
		a.Log.Info("audit scheduler disabled")
		return nil
	}
	if a.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := a.RunOnce(context.Background()); err != nil {
			a.Log.Error("scheduled audit failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	a.cron = c

	a.Log.Info("audit scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop stops the schedule and waits for a running audit to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cron == nil {
		return
	}
	<-a.cron.Stop().Done()
	a.cron = nil
	a.Log.Info("audit scheduler stopped")
}

// RunOnce audits every catalog track. Per-track read failures are counted
// in Failed; only a failure to list the catalog aborts the run.
func (a *Auditor) RunOnce(ctx context.Context) (AuditReport, error) {
	report := AuditReport{StartedAt: time.Now().UTC()}

	tracks, err := a.Store.ListTracks(ctx, market.TrackFilter{})
	if err != nil {
		return report, err
	}

	workers := a.Workers
	if workers <= 0 {
		workers = defaultAuditWorkers
	}
	pool := pond.NewPool(workers, pond.WithContext(ctx))

	var mu sync.Mutex
	for _, t := range tracks {
		pool.Submit(func() {
			entries, err := a.Store.EntriesByTrack(ctx, t.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				a.Log.Warn("audit: failed to load entries",
					zap.String("track_id", string(t.ID)),
					zap.Error(err),
				)
				return
			}
			report.Checked++
			if t.Downloads < int64(len(entries)) {
				report.Mismatches = append(report.Mismatches, AuditMismatch{
					TrackID:   t.ID,
					Title:     t.Title,
					Downloads: t.Downloads,
					Entries:   len(entries),
				})
			}
		})
	}
	pool.StopAndWait()

	sort.Slice(report.Mismatches, func(i, j int) bool {
		return report.Mismatches[i].TrackID < report.Mismatches[j].TrackID
	})
	report.Duration = time.Since(report.StartedAt)

	for _, m := range report.Mismatches {
		a.Log.Warn("audit: download counter below entry count",
			zap.String("track_id", string(m.TrackID)),
			zap.Int64("downloads", m.Downloads),
			zap.Int("entries", m.Entries),
		)
	}
	a.Log.Info("audit completed",
		zap.Int("checked", report.Checked),
		zap.Int("failed", report.Failed),
		zap.Int("mismatches", len(report.Mismatches)),
		zap.Duration("duration", report.Duration),
	)
	return report, ctx.Err()
}
