package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/formgate/internal/api"
	"github.com/charlesng35/formgate/internal/app"
	"github.com/charlesng35/formgate/internal/app/maintenance"
	"github.com/charlesng35/formgate/internal/middleware"
	"github.com/charlesng35/formgate/internal/services"
	"github.com/charlesng35/formgate/pkg/metrics"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	Stores     *app.Stores
	Admissions *services.AdmissionService
	Reconciler *maintenance.Reconciler
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// bootstrapRuntime opens the stores, wires services, and builds the HTTP router.
// Schema setup failures are returned so the server never starts listening without a
// usable record store.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	logStartupDiagnostics(cfg, log)

	stack.Stores, err = app.OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialise stores: %w", err)
	}
	log.Info("database ready", zap.String("driver", cfg.Database.DatabaseSettings().Driver))

	exists, err := stack.Stores.Allowlist.Exists()
	switch {
	case err != nil:
		log.Warn("allowlist file is not accessible", zap.String("path", stack.Stores.Allowlist.Path()), zap.Error(err))
	case !exists:
		log.Warn("allowlist file not found; create it as a JSON array of authorized emails",
			zap.String("path", stack.Stores.Allowlist.Path()))
	default:
		if tokens, loadErr := stack.Stores.Allowlist.Load(ctx); loadErr != nil {
			log.Warn("allowlist file is unreadable", zap.Error(loadErr))
		} else {
			metrics.AllowlistTokens.Set(float64(len(tokens)))
			log.Info("allowlist loaded", zap.Int("tokens", len(tokens)))
		}
	}

	stack.Admissions, err = services.NewAdmissionService(stack.Stores.Allowlist, stack.Stores.Records, stack.Stores.Locker)
	if err != nil {
		return nil, fmt.Errorf("initialise admission service: %w", err)
	}

	if cfg.Maintenance.Reconcile.Enabled {
		stack.Reconciler, err = maintenance.NewReconciler(
			stack.Stores.Allowlist,
			stack.Stores.Records,
			stack.Stores.Locker,
			maintenance.WithSchedule(cfg.Maintenance.Reconcile.Schedule),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise reconciler: %w", err)
		}
		if stats, runErr := stack.Reconciler.RunOnce(ctx); runErr != nil {
			log.Warn("startup allowlist reconciliation failed", zap.Error(runErr))
		} else if stats.Removed > 0 {
			log.Warn("removed already used allowlist tokens", zap.Int("removed", stats.Removed))
		}
		if err := stack.Reconciler.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	if stack.Stores.Redis != nil {
		stack.RateStore = middleware.NewRedisRateStore(stack.Stores.Redis)
	} else {
		stack.RateStore = middleware.NewMemoryRateStore()
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		Admissions: stack.Admissions,
		Records:    stack.Stores.Records,
		Allowlist:  stack.Stores.Allowlist,
		RateStore:  stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Reconciler != nil {
		stopCtx := s.Reconciler.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
		s.Reconciler = nil
	}

	if s.Stores != nil {
		if err := s.Stores.Close(); err != nil {
			log.Warn("failed to close stores", zap.Error(err))
		}
		s.Stores = nil
	}
}
