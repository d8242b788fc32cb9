// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aiku/fedibot/pkg/bot"
	"github.com/aiku/fedibot/pkg/bot/vocab"
)

// dryRunClient is a FederationClient for local development: it mints URIs
// like a real transport would but logs deliveries instead of performing
// them, and synthesizes actors instead of fetching them. This keeps the
// daemon runnable without signing keys or network access.
type dryRunClient struct {
	domain string
	log    zerolog.Logger
}

var _ bot.FederationClient = (*dryRunClient)(nil)

func newDryRunClient(domain string, log zerolog.Logger) *dryRunClient {
	return &dryRunClient{
		domain: domain,
		log:    log.With().Str("component", "dryrun_federation").Logger(),
	}
}

func (c *dryRunClient) ActorURI(identifier string) string {
	return "https://" + c.domain + "/users/" + identifier
}

func (c *dryRunClient) ObjectURI(identifier, localID string) string {
	return c.ActorURI(identifier) + "/objects/" + localID
}

func (c *dryRunClient) FollowersURI(identifier string) string {
	return c.ActorURI(identifier) + "/followers"
}

// ResolveActor synthesizes an actor from the reference: handles map onto
// the conventional /users/ layout and URIs echo back as-is.
func (c *dryRunClient) ResolveActor(_ context.Context, ref string) (*vocab.Actor, error) {
	if strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
		return &vocab.Actor{ID: ref, Type: "Person"}, nil
	}
	handle := strings.TrimPrefix(ref, "@")
	user, host, ok := strings.Cut(handle, "@")
	if !ok || user == "" || host == "" {
		return nil, nil
	}
	return &vocab.Actor{
		ID:                "https://" + host + "/users/" + user,
		Type:              "Person",
		PreferredUsername: user,
		Inbox:             "https://" + host + "/users/" + user + "/inbox",
	}, nil
}

func (c *dryRunClient) ResolveObject(_ context.Context, uri string) (*vocab.Note, error) {
	c.log.Debug().Str("uri", uri).Msg("Dry run: not resolving remote object")
	return nil, nil
}

func (c *dryRunClient) SendActivity(_ context.Context, activity *vocab.Activity, recipients []*vocab.Actor, opts bot.SendOptions) error {
	uris := make([]string, len(recipients))
	for i, r := range recipients {
		uris[i] = r.ID
	}
	payload, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	c.log.Info().
		Str("activity_type", string(activity.Type)).
		Str("activity_id", activity.ID).
		Strs("recipients", uris).
		Bool("prefer_shared_inbox", opts.PreferSharedInbox).
		RawJSON("activity", payload).
		Msg("Dry run: would deliver activity")
	return nil
}
