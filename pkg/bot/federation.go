// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"errors"

	"github.com/aiku/fedibot/pkg/bot/vocab"
)

// ErrInvalidReference is returned when an operation required an actor but
// the resolved object is not one, or has no id.
var ErrInvalidReference = errors.New("resolved object is not a usable actor")

// SendOptions tunes a single outbound delivery.
type SendOptions struct {
	// PreferSharedInbox collapses recipients on the same server into one
	// delivery to their shared inbox when the remote advertises one.
	PreferSharedInbox bool
	// ExcludeOrigins drops recipients whose actor URI starts with any of
	// the listed origins (used to avoid echoing back to the activity's
	// source server).
	ExcludeOrigins []string
}

// FederationClient is the transport capability the runtime consumes. The
// wire protocol itself (signing, delivery, JSON-LD handling, webfinger) is
// the client's problem; the runtime only decides what to send where.
//
// Not-found is never an error: ResolveActor and ResolveObject return
// (nil, nil) when the reference does not exist.
type FederationClient interface {
	// ResolveActor looks up an actor by URI or by @user@host handle.
	ResolveActor(ctx context.Context, ref string) (*vocab.Actor, error)
	// ResolveObject dereferences a remote content object by URI.
	ResolveObject(ctx context.Context, uri string) (*vocab.Note, error)
	// SendActivity delivers an activity envelope to the given recipients.
	// Per-recipient failures are the client's to report; a returned error
	// means the delivery as a whole could not be attempted.
	SendActivity(ctx context.Context, activity *vocab.Activity, recipients []*vocab.Actor, opts SendOptions) error

	// Deterministic id minting for objects owned by the given local
	// identifier.
	ActorURI(identifier string) string
	ObjectURI(identifier string, localID string) string
	FollowersURI(identifier string) string
}
