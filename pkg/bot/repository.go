// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aiku/fedibot/pkg/bot/vocab"
	"github.com/aiku/fedibot/pkg/store"
)

// Outbox is the append-only repository of envelopes this bot has
// published. Records are keyed by their time-ordered RecordID, so
// iteration order is publish order and needs no separate index.
type Outbox struct {
	store store.Store
	log   zerolog.Logger
}

// NewOutbox creates an envelope repository over the given store.
func NewOutbox(st store.Store, log zerolog.Logger) *Outbox {
	return &Outbox{
		store: st,
		log:   log.With().Str("component", "outbox").Logger(),
	}
}

// Put persists an envelope under its record id. Records are never mutated
// after this point.
func (o *Outbox) Put(ctx context.Context, id RecordID, envelope *vocab.Activity) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope %s: %w", id, err)
	}
	return o.store.Set(ctx, MakeOutboxKey(id), data)
}

// Get loads a stored envelope. Missing records return (nil, nil); so do
// corrupt ones, since a historical bad record must not block readers.
func (o *Outbox) Get(ctx context.Context, id RecordID) (*vocab.Activity, error) {
	data, err := o.store.Get(ctx, MakeOutboxKey(id))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var envelope vocab.Activity
	if err := json.Unmarshal(data, &envelope); err != nil {
		o.log.Warn().Err(err).Str("record_id", id.String()).Msg("Skipping corrupt stored envelope")
		return nil, nil
	}
	return &envelope, nil
}

// Delete removes a stored envelope.
func (o *Outbox) Delete(ctx context.Context, id RecordID) error {
	return o.store.Delete(ctx, MakeOutboxKey(id))
}

// ListOrder selects iteration direction for List.
type ListOrder int

const (
	// OrderDescending returns newest records first.
	OrderDescending ListOrder = iota
	// OrderAscending returns oldest records first.
	OrderAscending
)

// List returns up to limit stored envelopes in id (time) order, starting
// after cursor when one is given. The second return value is the cursor
// for the next page, empty at the end. Corrupt records are skipped.
func (o *Outbox) List(ctx context.Context, order ListOrder, cursor RecordID, limit int) ([]*vocab.Activity, RecordID, error) {
	opts := store.ScanOptions{Reverse: order == OrderDescending}
	if cursor != "" {
		opts.After = MakeOutboxKey(cursor)
	}

	var envelopes []*vocab.Activity
	var last RecordID
	truncated := false
	err := o.store.Scan(ctx, []byte(outboxKeyPrefix), opts, func(key, value []byte) (bool, error) {
		if limit > 0 && len(envelopes) >= limit {
			truncated = true
			return false, nil
		}
		id, err := ParseOutboxKey(key)
		if err != nil {
			return true, nil
		}
		var envelope vocab.Activity
		if err := json.Unmarshal(value, &envelope); err != nil {
			o.log.Warn().Err(err).Str("record_id", id.String()).Msg("Skipping corrupt stored envelope")
			return true, nil
		}
		envelopes = append(envelopes, &envelope)
		last = id
		return true, nil
	})
	if err != nil {
		return nil, "", err
	}
	if !truncated {
		last = ""
	}
	return envelopes, last, nil
}
