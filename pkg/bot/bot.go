// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aiku/fedibot/pkg/bot/textfmt"
	"github.com/aiku/fedibot/pkg/bot/vocab"
	"github.com/aiku/fedibot/pkg/store"
)

// TextRenderer turns a structured document into HTML, plain text, and the
// mention/hashtag references it contains. The default implementation is
// [textfmt.Renderer]; tests swap in fakes.
type TextRenderer interface {
	Render(ctx context.Context, doc string) (*textfmt.Rendered, error)
}

// Handlers is the set of user event callbacks, registered once at
// construction and immutable afterwards. Nil entries are simply not
// invoked. Handler errors are not swallowed: they propagate to the
// inbound-delivery caller so host infrastructure can apply its own retry
// policy.
type Handlers struct {
	// OnFollow fires when a new follower is accepted. Not re-fired for
	// duplicate Follows from an actor already following.
	OnFollow func(ctx context.Context, actor *vocab.Actor) error
	// OnUnfollow fires when a follower's matching Undo is processed.
	OnUnfollow func(ctx context.Context, actor *vocab.Actor) error
	// OnReply fires for an inbound Create replying to a message this bot
	// published.
	OnReply func(ctx context.Context, msg *Message) error
	// OnMention fires for an inbound Create mentioning the bot (unless
	// OnReply already claimed it; at most one handler runs per Create).
	OnMention func(ctx context.Context, msg *Message) error
	// OnMessage fires for any other inbound Create addressed to the bot.
	OnMessage func(ctx context.Context, msg *Message) error
}

// Options configures a Bot.
type Options struct {
	Config     *Config
	Store      store.Store
	Federation FederationClient
	// Renderer is optional; when nil, a markdown renderer resolving
	// mentions through Federation is used.
	Renderer TextRenderer
	Handlers Handlers
	Logger   zerolog.Logger
}

// Bot is the federated social bot runtime: it owns the follower set, the
// published-envelope repository, and the publish and dispatch pipelines.
type Bot struct {
	cfg      *Config
	log      zerolog.Logger
	store    store.Store
	fed      FederationClient
	renderer TextRenderer
	handlers Handlers

	followers *FollowerRepo
	outbox    *Outbox
	clock     *recordClock

	actorURI     string
	followersURI string
}

// New constructs a bot runtime. The store and federation client are
// required; everything else has defaults.
func New(opts Options) (*Bot, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if err := opts.Config.PostProcess(); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: store is required")
	}
	if opts.Federation == nil {
		return nil, fmt.Errorf("bot: federation client is required")
	}

	log := opts.Logger.With().Str("bot", opts.Config.Identifier).Logger()
	b := &Bot{
		cfg:      opts.Config,
		log:      log,
		store:    opts.Store,
		fed:      opts.Federation,
		renderer: opts.Renderer,
		handlers: opts.Handlers,

		followers: NewFollowerRepo(opts.Store, log),
		outbox:    NewOutbox(opts.Store, log),
		clock:     newRecordClock(),

		actorURI:     opts.Federation.ActorURI(opts.Config.Identifier),
		followersURI: opts.Federation.FollowersURI(opts.Config.Identifier),
	}
	if b.renderer == nil {
		b.renderer = textfmt.NewRenderer(opts.Federation, opts.Config.TagBaseURL())
	}
	return b, nil
}

// ActorURI is the URI of the bot's own actor.
func (b *Bot) ActorURI() string {
	return b.actorURI
}

// FollowersURI is the URI of the bot's followers collection, used both in
// audience lists and in visibility derivation.
func (b *Bot) FollowersURI() string {
	return b.followersURI
}

// Followers exposes the follower repository.
func (b *Bot) Followers() *FollowerRepo {
	return b.followers
}

// Outbox exposes the published-envelope repository.
func (b *Bot) Outbox() *Outbox {
	return b.outbox
}
