// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aiku/fedibot/pkg/bot/vocab"
	"github.com/aiku/fedibot/pkg/store"
)

// followerEntry is one follower in the shared list: the actor URI plus the
// last raw actor snapshot received, used to answer paginated followers
// queries without re-fetching.
type followerEntry struct {
	URI   string          `json:"uri"`
	Actor json.RawMessage `json:"actor,omitempty"`
}

// followerList is the persisted FollowerSet record. Version increments on
// every write so a concurrent writer of the same store is detectable.
type followerList struct {
	Version uint64          `json:"version"`
	Entries []followerEntry `json:"entries"`
}

// FollowerRepo maintains the set of actors following the bot, safe under
// concurrent inbound deliveries. All mutations of the shared list are
// serialized through an in-process mutex; the persisted version counter
// additionally detects writes from outside this process and retries the
// read-modify-write cycle.
type FollowerRepo struct {
	mu    sync.Mutex
	store store.Store
	log   zerolog.Logger
}

// NewFollowerRepo creates a follower repository over the given store.
func NewFollowerRepo(st store.Store, log zerolog.Logger) *FollowerRepo {
	return &FollowerRepo{
		store: st,
		log:   log.With().Str("component", "followers").Logger(),
	}
}

// maxMutateRetries bounds the external-writer retry loop.
const maxMutateRetries = 8

func (r *FollowerRepo) load(ctx context.Context) (*followerList, error) {
	data, err := r.store.Get(ctx, []byte(followersKey))
	if err != nil {
		return nil, fmt.Errorf("failed to load follower list: %w", err)
	}
	list := &followerList{}
	if len(data) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(data, list); err != nil {
		return nil, fmt.Errorf("follower list is corrupt: %w", err)
	}
	return list, nil
}

// mutate runs edit against the current list under the repository mutex and
// persists the result when edit reports a change. If the stored version
// moved underneath us (an external writer), the cycle restarts from a
// fresh read.
func (r *FollowerRepo) mutate(ctx context.Context, edit func(list *followerList) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxMutateRetries; attempt++ {
		list, err := r.load(ctx)
		if err != nil {
			return err
		}
		base := list.Version
		if !edit(list) {
			return nil
		}
		list.Version = base + 1
		data, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("failed to marshal follower list: %w", err)
		}
		if err := r.store.Set(ctx, []byte(followersKey), data); err != nil {
			return fmt.Errorf("failed to store follower list: %w", err)
		}
		check, err := r.load(ctx)
		if err != nil {
			return err
		}
		if check.Version == base+1 {
			return nil
		}
		r.log.Warn().
			Uint64("expected_version", base+1).
			Uint64("stored_version", check.Version).
			Int("attempt", attempt+1).
			Msg("Follower list version moved underneath write, retrying")
	}
	return fmt.Errorf("follower list contended after %d attempts", maxMutateRetries)
}

// AddFollower idempotently ensures actorURI is present, overwriting its
// snapshot (last write wins). Returns true when the entry is new.
func (r *FollowerRepo) AddFollower(ctx context.Context, actorURI string, snapshot json.RawMessage) (bool, error) {
	if actorURI == "" {
		return false, ErrInvalidReference
	}
	added := false
	err := r.mutate(ctx, func(list *followerList) bool {
		for i := range list.Entries {
			if list.Entries[i].URI == actorURI {
				added = false
				list.Entries[i].Actor = snapshot
				return true
			}
		}
		added = true
		list.Entries = append(list.Entries, followerEntry{URI: actorURI, Actor: snapshot})
		return true
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// RemoveFollower idempotently removes actorURI. Returns true when an entry
// was actually removed.
func (r *FollowerRepo) RemoveFollower(ctx context.Context, actorURI string) (bool, error) {
	removed := false
	err := r.mutate(ctx, func(list *followerList) bool {
		for i := range list.Entries {
			if list.Entries[i].URI == actorURI {
				list.Entries = append(list.Entries[:i], list.Entries[i+1:]...)
				removed = true
				return true
			}
		}
		return false
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Follower returns the stored snapshot for actorURI. ok is false when the
// actor is not currently following.
func (r *FollowerRepo) Follower(ctx context.Context, actorURI string) (json.RawMessage, bool, error) {
	list, err := r.load(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, e := range list.Entries {
		if e.URI == actorURI {
			return e.Actor, true, nil
		}
	}
	return nil, false, nil
}

// FollowerPage is one window of the follower set in insertion order.
type FollowerPage struct {
	Entries []FollowerEntry
	// NextCursor is the opaque cursor for the following page, empty at
	// the end of the set.
	NextCursor string
}

// FollowerEntry is a follower as returned from pagination: the actor URI
// and the raw snapshot stored for it.
type FollowerEntry struct {
	URI      string
	Snapshot json.RawMessage
}

// ListFollowers returns up to windowSize entries starting after cursor (a
// previously returned actor URI; empty starts from the beginning). A
// cursor no longer present in the set yields an empty page, tolerating
// removal between pages.
func (r *FollowerRepo) ListFollowers(ctx context.Context, cursor string, windowSize int) (*FollowerPage, error) {
	list, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	start := 0
	if cursor != "" {
		start = -1
		for i := range list.Entries {
			if list.Entries[i].URI == cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return &FollowerPage{}, nil
		}
	}
	page := &FollowerPage{}
	end := start + windowSize
	if end > len(list.Entries) {
		end = len(list.Entries)
	}
	for _, e := range list.Entries[start:end] {
		page.Entries = append(page.Entries, FollowerEntry{URI: e.URI, Snapshot: e.Actor})
	}
	if end < len(list.Entries) && end > start {
		page.NextCursor = list.Entries[end-1].URI
	}
	return page, nil
}

// Count returns the current follower count. Eventually consistent: it
// reads without taking the mutation lock.
func (r *FollowerRepo) Count(ctx context.Context) (int, error) {
	list, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(list.Entries), nil
}

// Recipients decodes every stored snapshot into an actor for delivery
// fan-out. Corrupt snapshots are skipped, not fatal.
func (r *FollowerRepo) Recipients(ctx context.Context) ([]*vocab.Actor, error) {
	list, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	recipients := make([]*vocab.Actor, 0, len(list.Entries))
	for _, e := range list.Entries {
		var actor vocab.Actor
		if len(e.Actor) == 0 || json.Unmarshal(e.Actor, &actor) != nil || actor.ID == "" {
			// Snapshot missing or corrupt; the URI alone still names the
			// recipient.
			recipients = append(recipients, &vocab.Actor{ID: e.URI})
			continue
		}
		recipients = append(recipients, &actor)
	}
	return recipients, nil
}

// RememberFollowRequest indexes an inbound Follow activity id to the
// follower it came from, so a later Undo referencing the Follow id can be
// correlated back.
func (r *FollowerRepo) RememberFollowRequest(ctx context.Context, activityID, actorURI string) error {
	return r.store.Set(ctx, MakeFollowRequestKey(activityID), []byte(actorURI))
}

// LookupFollowRequest returns the follower URI recorded for a Follow
// activity id, or empty when unknown.
func (r *FollowerRepo) LookupFollowRequest(ctx context.Context, activityID string) (string, error) {
	data, err := r.store.Get(ctx, MakeFollowRequestKey(activityID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ForgetFollowRequest removes the index entry once its Undo has been
// processed. Entries for follows that are never undone simply stay;
// they are harmless.
func (r *FollowerRepo) ForgetFollowRequest(ctx context.Context, activityID string) error {
	return r.store.Delete(ctx, MakeFollowRequestKey(activityID))
}
