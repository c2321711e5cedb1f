package health

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/logger"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means the database answers but file storage does not.
	Degraded Status = "degraded"
	// Unhealthy means the database is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

const (
	componentDatabase = "database"
	componentStorage  = "storage"
)

// DefaultCheckTimeout bounds each component probe.
const DefaultCheckTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	storage StorageChecker
	timeout time.Duration
}

// New creates a Service. storage can be nil.
func New(db DBPinger, storage StorageChecker) *Service {
	return &Service{db: db, storage: storage, timeout: DefaultCheckTimeout}
}

// WithTimeout overrides the per-component probe timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check probes the database and file storage in parallel.
func (s *Service) Check(ctx context.Context) Report {
	probes := map[string]func(context.Context) error{componentDatabase: s.db.Ping}
	if s.storage != nil {
		probes[componentStorage] = s.storage.HealthCheck
	}

	var (
		mu     sync.Mutex
		wg     conc.WaitGroup
		checks = make(map[string]CheckResult, len(probes))
	)
	for name, probe := range probes {
		wg.Go(func() {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			res := result(ctx, name, probe(pctx))
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		})
	}
	wg.Wait()

	status := Healthy
	switch {
	case checks[componentDatabase] == CheckError:
		status = Unhealthy
	case checks[componentStorage] == CheckError:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func result(ctx context.Context, component string, err error) CheckResult {
	if err == nil {
		return CheckOK
	}
	logger.FromContext(ctx).Warn("Health check failed",
		zap.String("component", component),
		zap.Error(err),
	)
	return CheckError
}
