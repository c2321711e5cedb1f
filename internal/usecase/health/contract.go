package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker checks that file storage is usable.
type StorageChecker interface {
	HealthCheck(ctx context.Context) error
}
