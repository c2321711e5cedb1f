package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockStorageChecker struct {
	err error
}

func (m *mockStorageChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		dbErr       error
		storage     StorageChecker
		wantStatus  Status
		wantDB      CheckResult
		wantStorage CheckResult
	}{
		{"all healthy", nil, &mockStorageChecker{}, Healthy, CheckOK, CheckOK},
		{"database down", errors.New("conn refused"), &mockStorageChecker{}, Unhealthy, CheckError, CheckOK},
		{"storage down", nil, &mockStorageChecker{err: errors.New("read-only")}, Degraded, CheckOK, CheckError},
		{"both down", errors.New("db"), &mockStorageChecker{err: errors.New("fs")}, Unhealthy, CheckError, CheckError},
		{"no storage checker", nil, nil, Healthy, CheckOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&mockDBPinger{err: tt.dbErr}, tt.storage).Check(context.Background())
			if r.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", r.Status, tt.wantStatus)
			}
			if r.Checks["database"] != tt.wantDB {
				t.Errorf("database = %q, want %q", r.Checks["database"], tt.wantDB)
			}
			if r.Checks["storage"] != tt.wantStorage {
				t.Errorf("storage = %q, want %q", r.Checks["storage"], tt.wantStorage)
			}
		})
	}
}

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCheck_ProbeTimeout(t *testing.T) {
	start := time.Now()
	r := New(slowPinger{}, &mockStorageChecker{}).
		WithTimeout(20 * time.Millisecond).
		Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("status = %q, want %q", r.Status, Unhealthy)
	}
	if r.Checks["storage"] != CheckOK {
		t.Errorf("storage = %q, want ok", r.Checks["storage"])
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("check took %v, probe timeout not applied", d)
	}
}

func TestWithTimeout_IgnoresNonPositive(t *testing.T) {
	s := New(&mockDBPinger{}, nil).WithTimeout(0)
	if s.timeout != DefaultCheckTimeout {
		t.Errorf("timeout = %v, want default", s.timeout)
	}
}
