// Copyright 2024-2026 Aiku AI

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements Store on top of a Pebble database. Pebble keeps
// keys in byte order, which gives prefix scans and cursor pagination for
// free.
type PebbleStore struct {
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

// OpenPebble opens (or creates) a Pebble database at the given path.
func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Get(_ context.Context, key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

func (s *PebbleStore) Set(_ context.Context, key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

func (s *PebbleStore) Delete(_ context.Context, key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

func (s *PebbleStore) Scan(_ context.Context, prefix []byte, opts ScanOptions, fn ScanFunc) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	advance := iter.Next
	var valid bool
	if opts.Reverse {
		advance = iter.Prev
		if opts.After != nil {
			// Position on the greatest key strictly below After.
			valid = iter.SeekLT(opts.After)
		} else if bound := prefixUpperBound(prefix); bound != nil {
			// bound is prefix with its last byte bumped; SeekLT lands
			// on the greatest key under the prefix.
			valid = iter.SeekLT(bound)
		} else {
			valid = iter.Last()
		}
	} else {
		if opts.After != nil {
			valid = iter.SeekGE(opts.After)
			if valid && bytes.Equal(iter.Key(), opts.After) {
				valid = iter.Next()
			}
		} else {
			valid = iter.SeekGE(prefix)
		}
	}

	for ; valid; valid = advance() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		keep, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !keep {
			break
		}
	}
	return iter.Error()
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key that has
// the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	bound := append([]byte(nil), prefix...)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xFF {
			bound[i]++
			return bound[:i+1]
		}
	}
	// All 0xFF: no finite upper bound, scan from the end.
	return nil
}
