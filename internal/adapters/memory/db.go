// Package memory provides process-local implementations of the storage
// ports for single-node deployments and tests.
package memory

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// DB satisfies ports.DBPort for the memory stores. It has no executor and
// runs transactional callbacks with a nil transaction; row locking is left
// to the caller's per-subscription lock.
type DB struct{}

// NewDB creates a memory DBPort
func NewDB() *DB {
	return &DB{}
}

// Executor returns nil; memory repositories ignore it
func (DB) Executor() ports.DBTX {
	return nil
}

// WithTransaction calls fn with a nil transaction
func (DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

var _ ports.DBPort = DB{}
