// Package broadcast fans one admin message out to every known user.
// A run works on a snapshot of the user list taken at start, so dialog
// traffic keeps flowing while the fan-out is in progress.
package broadcast

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"log/slog"

	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/logger"
	"github.com/kuznya/studiobot/core/transport"
)

// Report summarizes one broadcast run. Total == Delivered + Failed.
type Report struct {
	Total     int
	Delivered int
	// Failed counts every undelivered recipient, blocked ones included.
	Failed int
	// Blocked is the subset of Failed who banned the bot; they are not
	// retried and not treated as infrastructure failures.
	Blocked int
	Took    time.Duration
	// Errs aggregates per-recipient delivery errors.
	Errs error
}

// Dispatcher sends broadcasts through the shared transport.
type Dispatcher struct {
	transport transport.Transport
	registry  *dialog.Registry
	adminID   int64

	// paceEvery inserts paceDelay after this many sends; 0 disables pacing.
	paceEvery int
	paceDelay time.Duration
}

// New builds a dispatcher. adminID is excluded from every run.
func New(tr transport.Transport, registry *dialog.Registry, adminID int64, paceEvery int, paceDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		transport: tr,
		registry:  registry,
		adminID:   adminID,
		paceEvery: paceEvery,
		paceDelay: paceDelay,
	}
}

// Run delivers text to every known user except the admin. Individual
// delivery failures never abort the run; they are counted and collected
// in the report. The error return is reserved for store outages while
// snapshotting recipients.
func (d *Dispatcher) Run(ctx context.Context, text string) (Report, error) {
	recipients, err := d.registry.UserIDs(ctx)
	if err != nil {
		return Report{}, err
	}

	start := time.Now()
	report := Report{}
	var errs *multierror.Error

	sent := 0
	for _, userID := range recipients {
		if userID == d.adminID {
			continue
		}
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}
		report.Total++

		if err := d.transport.Send(ctx, userID, text); err != nil {
			report.Failed++
			if transport.IsBlocked(err) {
				report.Blocked++
			}
			errs = multierror.Append(errs, err)
		} else {
			report.Delivered++
		}

		sent++
		if d.paceEvery > 0 && d.paceDelay > 0 && sent%d.paceEvery == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(d.paceDelay):
			}
		}
	}

	report.Took = logger.RoundMS(time.Since(start))
	report.Errs = errs.ErrorOrNil()

	if err := d.registry.RecordBroadcast(ctx); err != nil {
		logger.SVCBroadcast.Warn("broadcast counter update failed",
			slog.String("event", "broadcast.stats"),
			slog.String("err", err.Error()),
		)
	}
	logger.SVCBroadcast.Info("broadcast finished",
		slog.String("event", "broadcast.done"),
		slog.Int("total", report.Total),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.Failed),
		slog.Int("blocked", report.Blocked),
		slog.Duration("duration", report.Took),
	)
	return report, nil
}
