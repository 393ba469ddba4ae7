package store

import (
	"io"
	"testing"
	"time"

	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.JSONFormat,
		Output: io.Discard,
	})
	if err != nil {
		t.Fatalf("creating test logger: %v", err)
	}
	return log
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantCode apperrors.ErrorCode
	}{
		{"valid", Config{DSN: "user:pass@tcp(db)/recon", ChunkSize: 100}, ""},
		{"missing dsn", Config{ChunkSize: 100}, apperrors.CodeMissingConfig},
		{"zero chunk size", Config{DSN: "user:pass@tcp(db)/recon"}, apperrors.CodeInvalidConfig},
		{"negative chunk size", Config{DSN: "user:pass@tcp(db)/recon", ChunkSize: -5}, apperrors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !apperrors.IsCode(err, tt.wantCode) {
				t.Errorf("Validate() = %v, want code %v", err, tt.wantCode)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", cfg.ChunkSize, DefaultChunkSize)
	}
	if cfg.MaxOpenConns < cfg.MaxIdleConns {
		t.Errorf("MaxOpenConns %d below MaxIdleConns %d", cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
	if cfg.ConnectAttempts < 1 {
		t.Errorf("ConnectAttempts = %d, want at least one attempt", cfg.ConnectAttempts)
	}
}

func TestOpen_LastAttemptReturnsWithoutBackoff(t *testing.T) {
	// A DSN the driver rejects at parse time fails every attempt
	// instantly, so any elapsed time here would come from backoff
	// sleeps. The final attempt must not add one.
	cfg := &Config{DSN: "not-a-dsn", ConnectAttempts: 1, ChunkSize: 10}

	start := time.Now()
	_, err := Open(cfg, testLogger(t))
	elapsed := time.Since(start)

	if !apperrors.IsCode(err, apperrors.CodeConnectionFailed) {
		t.Fatalf("error = %v, want connection_failed", err)
	}
	if elapsed >= time.Second {
		t.Errorf("Open took %v, want an immediate return after the final attempt", elapsed)
	}
}

func TestNew_ChunkSizeFallback(t *testing.T) {
	s := New(nil, 0, nil)
	if s.ChunkSize() != DefaultChunkSize {
		t.Errorf("ChunkSize() = %d, want default %d", s.ChunkSize(), DefaultChunkSize)
	}

	s = New(nil, 300, nil)
	if s.ChunkSize() != 300 {
		t.Errorf("ChunkSize() = %d, want 300", s.ChunkSize())
	}
}
