// Copyright 2024-2026 Aiku AI

// Package store defines the ordered key-value contract the bot runtime
// persists through, plus a Pebble-backed implementation for production and
// an in-memory implementation for tests.
//
// Keys are ordered byte paths ("outbox:<id>", "followers"). The contract is
// deliberately minimal: single-key atomicity only, no transactions. Ordered
// prefix scans are the only compound operation; they power message listing
// and follower pagination.
package store

import "context"

// ScanOptions controls a prefix scan.
type ScanOptions struct {
	// Reverse iterates from the highest key under the prefix down.
	Reverse bool
	// After, when non-nil, skips keys up to and including this key
	// (or down to it when Reverse is set). Used for cursor pagination.
	After []byte
}

// ScanFunc receives each key/value pair in scan order. Returning false
// stops the scan early. Key and value are only valid for the duration of
// the call; implementations may reuse the backing arrays.
type ScanFunc func(key, value []byte) (bool, error)

// Store is the minimal ordered key-value contract. A missing key is not an
// error: Get returns (nil, nil) and Delete is a no-op.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Scan(ctx context.Context, prefix []byte, opts ScanOptions, fn ScanFunc) error
	Close() error
}
