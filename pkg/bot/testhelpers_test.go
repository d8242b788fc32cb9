// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aiku/fedibot/pkg/bot/vocab"
	"github.com/aiku/fedibot/pkg/store"
)

// sentActivity records one SendActivity call for test assertions.
type sentActivity struct {
	Activity   *vocab.Activity
	Recipients []string
	Opts       SendOptions
}

// fakeFederation is a FederationClient test double. It mints URIs with the
// conventional /users/ layout, resolves actors from a canned table, and
// records deliveries.
type fakeFederation struct {
	domain string

	mu   sync.Mutex
	sent []sentActivity
	// Actors maps handles and URIs to canned actors.
	Actors map[string]*vocab.Actor
	// Objects maps URIs to canned remote notes.
	Objects map[string]*vocab.Note
	// SendErr, when set, is returned from every SendActivity call.
	SendErr error

	resolveCalls map[string]int
}

func newFakeFederation() *fakeFederation {
	return &fakeFederation{
		domain:       "bot.test",
		Actors:       make(map[string]*vocab.Actor),
		Objects:      make(map[string]*vocab.Note),
		resolveCalls: make(map[string]int),
	}
}

func (f *fakeFederation) ActorURI(identifier string) string {
	return "https://" + f.domain + "/users/" + identifier
}

func (f *fakeFederation) ObjectURI(identifier, localID string) string {
	return f.ActorURI(identifier) + "/objects/" + localID
}

func (f *fakeFederation) FollowersURI(identifier string) string {
	return f.ActorURI(identifier) + "/followers"
}

func (f *fakeFederation) ResolveActor(_ context.Context, ref string) (*vocab.Actor, error) {
	f.mu.Lock()
	f.resolveCalls[ref]++
	actor := f.Actors[ref]
	f.mu.Unlock()
	return actor, nil
}

func (f *fakeFederation) ResolveObject(_ context.Context, uri string) (*vocab.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Objects[uri], nil
}

func (f *fakeFederation) SendActivity(_ context.Context, activity *vocab.Activity, recipients []*vocab.Actor, opts SendOptions) error {
	uris := make([]string, len(recipients))
	for i, r := range recipients {
		uris[i] = r.ID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.sent = append(f.sent, sentActivity{Activity: activity, Recipients: uris, Opts: opts})
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (f *fakeFederation) Sent() []sentActivity {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]sentActivity, len(f.sent))
	copy(cp, f.sent)
	return cp
}

// SentOfType filters recorded deliveries by activity kind.
func (f *fakeFederation) SentOfType(kind vocab.Kind) []sentActivity {
	var out []sentActivity
	for _, s := range f.Sent() {
		if s.Activity.Type == kind {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeFederation) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// ResolveCalls returns how often a reference was resolved.
func (f *fakeFederation) ResolveCalls(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls[ref]
}

// addActor registers a canned actor under both its handle and its URI.
func (f *fakeFederation) addActor(handle, uri string) *vocab.Actor {
	local := handle
	if i := strings.IndexByte(handle[1:], '@'); i >= 0 {
		local = handle[1 : i+1]
	}
	actor := &vocab.Actor{
		ID:                uri,
		Type:              "Person",
		PreferredUsername: local,
		Inbox:             uri + "/inbox",
	}
	f.mu.Lock()
	f.Actors[handle] = actor
	f.Actors[uri] = actor
	f.mu.Unlock()
	return actor
}

func testConfig() *Config {
	return &Config{
		Identifier: "bot",
		Domain:     "bot.test",
	}
}

// newTestBot builds a bot over an in-memory store and a fake federation
// client. Handlers may be zero.
func newTestBot(t *testing.T, fed *fakeFederation, handlers Handlers) *Bot {
	t.Helper()
	b, err := New(Options{
		Config:     testConfig(),
		Store:      store.NewMemoryStore(),
		Federation: fed,
		Handlers:   handlers,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}
