package pg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

// classify wraps a driver error as a StorageError. Connectivity and transient
// server conditions are retryable by the caller; rejected statements are not.
func classify(op string, err error) *store.StorageError {
	if isDimensionError(err) {
		return store.NewStorageError(op, fmt.Errorf("%w: %v", store.ErrDimensionMismatch, err), false)
	}
	return store.NewStorageError(op, err, isRetryable(err))
}

func isDimensionError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// pgvector: "expected 1536 dimensions, not 768" / "different vector dimensions 3 and 4"
	return pgErr.Code == "22000" && strings.Contains(pgErr.Message, "dimensions")
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			pgErr.Code == "57P01",               // admin_shutdown
			pgErr.Code == "57P02",               // crash_shutdown
			pgErr.Code == "57P03",               // cannot_connect_now
			pgErr.Code == "40001",               // serialization_failure
			pgErr.Code == "40P01":               // deadlock_detected
			return true
		}
		return false
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
