package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/twstock/internal/services"
)

// funcJob adapts a closure to the Job interface.
type funcJob struct {
	name string
	fn   func() error
}

func (j funcJob) Run() error   { return j.fn() }
func (j funcJob) Name() string { return j.name }

// NewJob wraps a closure as a named Job.
func NewJob(name string, fn func() error) Job {
	return funcJob{name: name, fn: fn}
}

// Deps are the service handles the job table drives.
type Deps struct {
	Closing  *services.ClosingService
	Dividend *services.DividendService
	Backfill *services.BackfillService
	Reminder *services.ReminderService
	Trace    *services.TraceQuoteService
	DDNS     *services.DDNSService
	Export   *services.ExportService
}

// jobTimeout bounds any single job body.
const jobTimeout = 3 * time.Hour

// RegisterAll wires the job table. Expressions are UTC, second precision.
func RegisterAll(ctx context.Context, s *Scheduler, deps Deps) error {
	withCtx := func(fn func(context.Context) error) func() error {
		return func() error {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			return fn(jobCtx)
		}
	}

	jobs := []struct {
		schedule string
		job      Job
	}{
		{"0 0 17 * * *", NewJob("emerging_nav", withCtx(deps.Backfill.EmergingNav))},
		{"0 30 18 * * *", NewJob("payout_ratio_recompute", withCtx(deps.Dividend.RecomputePayoutRatios))},
		{"0 0 19 * * *", NewJob("quarterly_eps", withCtx(deps.Backfill.QuarterlyEps))},
		{"0 0 20 * * *", NewJob("quarterly_statements", withCtx(deps.Backfill.QuarterlyStatements))},
		{"0 0 21 * * *", NewJob("nightly_backfills", withCtx(func(jobCtx context.Context) error {
			g, gctx := errgroup.WithContext(jobCtx)
			g.Go(func() error { return deps.Backfill.AnnualProfits(gctx) })
			g.Go(func() error { return deps.Backfill.ZeroNavRescan(gctx) })
			g.Go(func() error { return deps.Backfill.MonthlyRevenue(gctx) })
			g.Go(func() error { return deps.Backfill.RefreshListings(gctx) })
			g.Go(func() error { return deps.Backfill.DelistingSweep(gctx) })
			g.Go(func() error { return deps.Backfill.RefreshWeights(gctx) })
			return g.Wait()
		}))},
		{"0 0 0 * * *", NewJob("ex_dividend_reminder", withCtx(deps.Reminder.ExDividendReminder))},
		{"0 0 0 * * *", NewJob("payable_reminder", withCtx(deps.Reminder.PayableDateReminder))},
		{"0 0 0 * * *", NewJob("offering_reminder", withCtx(deps.Reminder.OfferingWindowReminder))},
		{"0 0 7 * * *", NewJob("closing_pipeline", withCtx(deps.Closing.Run))},
		{"0 0 13 * * *", NewJob("dividend_pipeline", withCtx(deps.Dividend.Run))},
		{"0 0 14 * * *", NewJob("qfii_holdings", withCtx(deps.Backfill.QfiiHoldings))},
		{"0 0 22 * * *", NewJob("public_offerings", withCtx(deps.Backfill.PublicOfferings))},
		{"0 0 22 * * *", NewJob("holiday_schedule", withCtx(deps.Backfill.Holidays))},
		{"0 0 22 * * *", NewJob("snapshot_export", withCtx(deps.Export.Run))},
		{"0 * * * * *", NewJob("ddns_refresh", withCtx(deps.DDNS.Refresh))},
		{"0 0 1 * * *", NewJob("trace_quote", withCtx(deps.Trace.Evaluate))},
	}

	for _, entry := range jobs {
		if err := s.AddJob(entry.schedule, entry.job); err != nil {
			return err
		}
	}
	return nil
}
