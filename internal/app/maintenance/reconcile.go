package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/formgate/internal/allowlist"
	"github.com/charlesng35/formgate/internal/locks"
	"github.com/charlesng35/formgate/pkg/logger"
	"github.com/charlesng35/formgate/pkg/metrics"
)

const (
	defaultReconcileSpec    = "@every 10m"
	defaultReconcileTimeout = time.Minute
)

// AllowlistStore loads and replaces the allowlist.
type AllowlistStore interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, tokens []string) error
}

// SubmissionLookup reports whether a submission already used an email.
type SubmissionLookup interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// Reconciler periodically removes allowlist tokens whose email already has a stored
// submission. Such tokens appear when the allowlist is edited by hand or restored from
// a backup.
type Reconciler struct {
	allowlist AllowlistStore
	records   SubmissionLookup
	locker    locks.Locker
	cron      *cron.Cron
	log       *zap.Logger
	schedule  string
	timeout   time.Duration
}

// Option customises the Reconciler.
type Option func(*Reconciler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(r *Reconciler) {
		if c != nil {
			r.cron = c
		}
	}
}

// WithSchedule overrides the cron specification for reconciliation.
func WithSchedule(spec string) Option {
	return func(r *Reconciler) {
		if spec != "" {
			r.schedule = spec
		}
	}
}

// WithTimeout bounds a single reconciliation run.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewReconciler constructs a Reconciler.
func NewReconciler(list AllowlistStore, records SubmissionLookup, locker locks.Locker, opts ...Option) (*Reconciler, error) {
	if list == nil {
		return nil, errors.New("reconciler: allowlist is required")
	}
	if records == nil {
		return nil, errors.New("reconciler: record store is required")
	}
	if locker == nil {
		return nil, errors.New("reconciler: locker is required")
	}

	r := &Reconciler{
		allowlist: list,
		records:   records,
		locker:    locker,
		schedule:  defaultReconcileSpec,
		timeout:   defaultReconcileTimeout,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.cron == nil {
		r.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return r, nil
}

// Start registers the reconciliation job and launches the scheduler.
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Warn("allowlist reconciliation failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("reconciler: schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (r *Reconciler) Stop() context.Context {
	if r.cron == nil {
		return context.Background()
	}
	return r.cron.Stop()
}

// ReconcileStats summarises one reconciliation run.
type ReconcileStats struct {
	Scanned   int
	Removed   int
	Remaining int
}

// RunOnce reconciles the allowlist against the record store under the allowlist lock.
// Tokens whose lookup fails are kept; the lookup errors are combined into the result.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	stats := ReconcileStats{}

	release, err := r.locker.Acquire(ctx, locks.AllowlistKey)
	if err != nil {
		return stats, fmt.Errorf("reconciler: acquire lock: %w", err)
	}
	defer release()

	tokens, err := r.allowlist.Load(ctx)
	if err != nil {
		return stats, fmt.Errorf("reconciler: load allowlist: %w", err)
	}
	stats.Scanned = len(tokens)

	var errs error
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		used, err := r.records.ExistsByEmail(ctx, allowlist.Normalize(token))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("lookup %s: %w", token, err))
			kept = append(kept, token)
			continue
		}
		if used {
			r.log.Info("removing already used allowlist token", zap.String("email", token))
			stats.Removed++
			continue
		}
		kept = append(kept, token)
	}

	if stats.Removed > 0 {
		if err := r.allowlist.Save(ctx, kept); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("save allowlist: %w", err))
			stats.Removed = 0
			kept = tokens
		} else {
			metrics.ReconciledTokens.Add(float64(stats.Removed))
		}
	}

	stats.Remaining = len(kept)
	metrics.AllowlistTokens.Set(float64(stats.Remaining))

	if errs != nil {
		return stats, fmt.Errorf("reconciler: %w", errs)
	}
	return stats, nil
}
