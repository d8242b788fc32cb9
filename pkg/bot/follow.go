// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mau.fi/util/ptr"

	"github.com/aiku/fedibot/pkg/bot/vocab"
)

// handleFollow advances NotFollowing -> Following. The transition is
// idempotent: a duplicate Follow from an actor already following updates
// its snapshot and re-sends the Accept (harmless at the protocol level)
// but does not re-fire the user's follow handler.
func (b *Bot) handleFollow(ctx context.Context, act *vocab.Activity) error {
	if target := act.ObjectID(); target != "" && target != b.actorURI {
		b.log.Debug().Str("target", target).Str("activity_id", act.ID).Msg("Ignoring Follow of foreign actor")
		return nil
	}
	actorRef := act.Actor.String()
	if actorRef == "" {
		return fmt.Errorf("follow %s: %w", act.ID, ErrInvalidReference)
	}
	actor, err := b.fed.ResolveActor(ctx, actorRef)
	if err != nil {
		return fmt.Errorf("failed to resolve follower %s: %w", actorRef, err)
	}
	if actor == nil || actor.ID == "" {
		return fmt.Errorf("follow %s from %s: %w", act.ID, actorRef, ErrInvalidReference)
	}

	// Index the Follow id first: a later Undo references it, not the
	// follower.
	if act.ID != "" {
		if err := b.followers.RememberFollowRequest(ctx, act.ID, actor.ID); err != nil {
			return err
		}
	}

	snapshot, err := json.Marshal(actor)
	if err != nil {
		return fmt.Errorf("failed to snapshot follower %s: %w", actor.ID, err)
	}
	added, err := b.followers.AddFollower(ctx, actor.ID, snapshot)
	if err != nil {
		return err
	}

	b.sendAccept(ctx, act, actor)

	if added {
		b.log.Info().Str("follower", actor.ID).Msg("New follower")
		if b.handlers.OnFollow != nil {
			return b.handlers.OnFollow(ctx, actor)
		}
	}
	return nil
}

// sendAccept answers a Follow with an Accept wrapping the original
// activity. Failures are logged only; the follower is already recorded
// and most servers retry the Follow anyway.
func (b *Bot) sendAccept(ctx context.Context, follow *vocab.Activity, actor *vocab.Actor) {
	object, err := vocab.WrapObject(follow)
	if err != nil {
		b.log.Error().Err(err).Str("activity_id", follow.ID).Msg("Failed to wrap Follow for Accept")
		return
	}
	accept := &vocab.Activity{
		Context:   vocab.ActivityStreamsContext,
		ID:        b.actorURI + "#accepts/" + b.clock.Next().String(),
		Type:      vocab.KindAccept,
		Actor:     vocab.IRI(b.actorURI),
		To:        []string{actor.ID},
		Published: ptr.Ptr(time.Now().UTC()),
		Object:    object,
	}
	if err := b.fed.SendActivity(ctx, accept, []*vocab.Actor{actor}, SendOptions{}); err != nil {
		b.log.Warn().Err(err).Str("follower", actor.ID).Msg("Failed to deliver Accept")
	}
}

// handleUndo advances Following -> NotFollowing when the undone activity
// is a Follow this bot indexed. An Undo whose Follow id is unknown, or
// whose actor does not match the recorded follower, is ignored: that
// guards against spoofed unfollow claims.
func (b *Bot) handleUndo(ctx context.Context, act *vocab.Activity) error {
	nested, err := act.ObjectActivity()
	if err != nil {
		b.log.Debug().Err(err).Str("activity_id", act.ID).Msg("Undo with undecodable object")
		return nil
	}
	if nested.Type != vocab.KindFollow {
		b.log.Trace().Str("undone_type", string(nested.Type)).Msg("Ignoring Undo of unhandled activity kind")
		return nil
	}
	if nested.ID == "" {
		return nil
	}

	followerURI, err := b.followers.LookupFollowRequest(ctx, nested.ID)
	if err != nil {
		return err
	}
	if followerURI == "" {
		b.log.Debug().Str("follow_id", nested.ID).Msg("Undo references unknown Follow, ignoring")
		return nil
	}
	// An absent actor is a mismatch too: anonymous Undos must not evict
	// anyone.
	undoer := act.Actor.String()
	if undoer != followerURI {
		b.log.Warn().
			Str("undoer", undoer).
			Str("recorded_follower", followerURI).
			Str("follow_id", nested.ID).
			Msg("Undo actor does not match recorded follower, ignoring")
		return nil
	}

	snapshot, _, err := b.followers.Follower(ctx, followerURI)
	if err != nil {
		return err
	}
	removed, err := b.followers.RemoveFollower(ctx, followerURI)
	if err != nil {
		return err
	}
	if err := b.followers.ForgetFollowRequest(ctx, nested.ID); err != nil {
		return err
	}
	if removed {
		b.log.Info().Str("follower", followerURI).Msg("Follower left")
		if b.handlers.OnUnfollow != nil {
			actor := &vocab.Actor{ID: followerURI}
			if len(snapshot) > 0 {
				var decoded vocab.Actor
				if json.Unmarshal(snapshot, &decoded) == nil && decoded.ID != "" {
					actor = &decoded
				}
			}
			return b.handlers.OnUnfollow(ctx, actor)
		}
	}
	return nil
}
