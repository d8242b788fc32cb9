// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"fmt"

	"github.com/aiku/fedibot/pkg/bot/vocab"
)

// DispatchActivity routes one inbound activity delivery. Each call is an
// independent unit of work; concurrent calls are safe. Errors from
// user-registered handlers are not caught here, so the host can apply its
// own retry policy to the inbound delivery.
func (b *Bot) DispatchActivity(ctx context.Context, raw []byte) error {
	act, err := vocab.DecodeActivity(raw)
	if err != nil {
		return fmt.Errorf("undispatchable activity: %w", err)
	}
	switch act.Type {
	case vocab.KindFollow:
		return b.handleFollow(ctx, act)
	case vocab.KindUndo:
		return b.handleUndo(ctx, act)
	case vocab.KindCreate:
		return b.handleCreate(ctx, act)
	case vocab.KindAccept, vocab.KindAnnounce, vocab.KindDelete:
		// Kinds the bot emits but does not consume.
		b.log.Trace().Str("activity_type", string(act.Type)).Str("activity_id", act.ID).Msg("Ignoring inbound activity kind")
		return nil
	default:
		b.log.Trace().Str("activity_type", string(act.Type)).Msg("Unhandled activity type")
		return nil
	}
}

// LookupObject answers a dereference of an object id this bot minted,
// selected by protocol type and local id. Unknown or malformed ids yield
// (nil, nil), never an error: remote peers probe freely.
func (b *Bot) LookupObject(ctx context.Context, kind vocab.Kind, rawID string) (any, error) {
	id, err := ParseRecordID(rawID)
	if err != nil {
		return nil, nil
	}
	envelope, err := b.outbox.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if envelope == nil {
		return nil, nil
	}
	switch kind {
	case vocab.KindNote, vocab.KindArticle:
		if envelope.Type != vocab.KindCreate {
			return nil, nil
		}
		note, err := envelope.ObjectNote()
		if err != nil || note.Type != kind {
			return nil, nil
		}
		return note, nil
	case vocab.KindCreate, vocab.KindAnnounce:
		if envelope.Type != kind {
			return nil, nil
		}
		return envelope, nil
	default:
		return nil, nil
	}
}

// handleCreate materializes the inbound object and invokes at most one
// user handler: the reply handler when the object replies to a message
// this bot minted, else the mention handler on the first self-mention,
// else the plain message handler.
func (b *Bot) handleCreate(ctx context.Context, act *vocab.Activity) error {
	note, err := act.ObjectNote()
	if err != nil {
		b.log.Warn().Err(err).Str("activity_id", act.ID).Msg("Create with undecodable object")
		return nil
	}
	if note.Type != vocab.KindNote && note.Type != vocab.KindArticle {
		b.log.Trace().Str("object_type", string(note.Type)).Msg("Ignoring Create of unhandled object type")
		return nil
	}

	msg := b.materialize(note, act, false)

	if _, local := b.localRecordID(note.InReplyTo.String()); local {
		if b.handlers.OnReply != nil {
			return b.handlers.OnReply(ctx, msg)
		}
		return nil
	}

	for _, tag := range note.Tag {
		if tag.Type != vocab.KindMention {
			continue
		}
		if tag.Href == b.actorURI {
			// Duplicate self-mentions are redundant; first match wins.
			if b.handlers.OnMention != nil {
				return b.handlers.OnMention(ctx, msg)
			}
			return nil
		}
	}

	if containsAddress(note.To, b.actorURI) || containsAddress(note.CC, b.actorURI) ||
		containsAddress(act.To, b.actorURI) || containsAddress(act.CC, b.actorURI) {
		if b.handlers.OnMessage != nil {
			return b.handlers.OnMessage(ctx, msg)
		}
	}
	return nil
}
