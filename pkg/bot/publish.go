// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/util/exsync"
	"go.mau.fi/util/ptr"

	"github.com/aiku/fedibot/pkg/bot/vocab"
)

// PublishOptions control a single publish.
type PublishOptions struct {
	// Visibility defaults to the configured default (normally public).
	Visibility Visibility
	// Language is a BCP-47 tag; empty falls back to the configured
	// default, and an explicit "-" publishes untagged.
	Language string
	// Attachments are kept in order on the published object.
	Attachments []vocab.Attachment
	// ReplyTarget threads the new message under an existing one.
	ReplyTarget *Message
	// Class selects the object subtype, vocab.KindNote by default.
	Class vocab.Kind
}

// Publish renders a document, addresses it per the requested visibility,
// persists the resulting envelope, and fans it out. Persistence is the
// source of truth: once the envelope is stored the publish has succeeded,
// and individual delivery failures are logged per recipient rather than
// surfaced to the caller.
func (b *Bot) Publish(ctx context.Context, doc string, opts PublishOptions) (*Message, error) {
	visibility := opts.Visibility
	if visibility == "" {
		visibility = b.cfg.DefaultVisibility
	}
	switch visibility {
	case VisibilityPublic, VisibilityUnlisted, VisibilityFollowers, VisibilityDirect:
	default:
		return nil, fmt.Errorf("cannot publish with visibility %q", visibility)
	}
	class := opts.Class
	if class == "" {
		class = vocab.KindNote
	}
	if class != vocab.KindNote && class != vocab.KindArticle {
		return nil, fmt.Errorf("cannot publish object class %q", class)
	}

	// Time-ordered local id: storage key and URI path segment at once.
	id := b.clock.Next()
	now := id.Time()

	rendered, err := b.renderer.Render(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	cache := exsync.NewMap[string, *vocab.Actor]()
	for uri, actor := range rendered.CachedActors {
		cache.Set(uri, actor)
	}

	var mentionURIs []string
	var tags []vocab.Tag
	for _, t := range rendered.Tags {
		tags = append(tags, vocab.Tag{Type: t.Kind, Href: t.Href, Name: t.Name})
		if t.Kind == vocab.KindMention {
			mentionURIs = append(mentionURIs, t.Href)
		}
	}

	to, cc := audienceFor(visibility, mentionURIs, b.followersURI)

	note := &vocab.Note{
		ID:           b.fed.ObjectURI(b.cfg.Identifier, id.String()),
		Type:         class,
		AttributedTo: vocab.IRI(b.actorURI),
		Content:      rendered.HTML,
		To:           to,
		CC:           cc,
		Tag:          tags,
		Attachment:   opts.Attachments,
		Published:    ptr.Ptr(now),
	}
	language := opts.Language
	if language == "" {
		language = b.cfg.Language
	}
	if language != "" && language != "-" {
		// The content is persisted twice on purpose: a language-tagged
		// entry plus the plain variant, for renderers that cannot
		// interpret language-tagged content.
		note.ContentMap = map[string]string{language: rendered.HTML}
	}
	if opts.ReplyTarget != nil {
		note.InReplyTo = vocab.IRI(opts.ReplyTarget.ID())
	}

	object, err := vocab.WrapObject(note)
	if err != nil {
		return nil, err
	}
	envelope := &vocab.Activity{
		Context:   vocab.ActivityStreamsContext,
		ID:        note.ID + "#activity",
		Type:      vocab.KindCreate,
		Actor:     vocab.IRI(b.actorURI),
		To:        to,
		CC:        cc,
		Published: ptr.Ptr(now),
		Object:    object,
	}

	if err := b.outbox.Put(ctx, id, envelope); err != nil {
		return nil, fmt.Errorf("failed to persist envelope: %w", err)
	}

	if visibility != VisibilityDirect {
		b.deliverToFollowers(ctx, envelope)
	}
	// Mentioned actors are delivered to unconditionally; direct messages
	// exist only to reach their mentions.
	b.deliverToMentions(ctx, envelope, mentionURIs, cache)

	return b.materialize(note, envelope, true), nil
}

// audienceFor reproduces the to/cc table per visibility. The ordering of
// to versus cc determines discoverability downstream and is contractual.
func audienceFor(visibility Visibility, mentionURIs []string, followersURI string) (to, cc []string) {
	switch visibility {
	case VisibilityPublic:
		to = append([]string{vocab.PublicCollection}, mentionURIs...)
		cc = []string{followersURI}
	case VisibilityUnlisted:
		to = append([]string{followersURI}, mentionURIs...)
		cc = []string{vocab.PublicCollection}
	case VisibilityFollowers:
		to = append([]string{followersURI}, mentionURIs...)
		cc = []string{}
	case VisibilityDirect:
		to = append([]string{}, mentionURIs...)
		cc = []string{}
	}
	return to, cc
}

// deliverToFollowers sends one delivery covering the followers audience,
// letting the client collapse same-server recipients onto shared inboxes.
// Failures are logged, never fatal: the envelope is already persisted.
func (b *Bot) deliverToFollowers(ctx context.Context, activity *vocab.Activity) {
	recipients, err := b.followers.Recipients(ctx)
	if err != nil {
		b.log.Error().Err(err).Str("activity_id", activity.ID).Msg("Failed to load followers for delivery")
		return
	}
	if len(recipients) == 0 {
		return
	}
	err = b.fed.SendActivity(ctx, activity, recipients, SendOptions{PreferSharedInbox: true})
	if err != nil {
		b.log.Warn().Err(err).
			Str("activity_id", activity.ID).
			Int("recipients", len(recipients)).
			Msg("Delivery to followers failed")
	}
}

// deliverToMentions resolves each mentioned actor (cache first) and
// delivers to them directly, concurrently. Per-recipient failures are
// logged and do not affect the publish.
func (b *Bot) deliverToMentions(ctx context.Context, activity *vocab.Activity, mentionURIs []string, cache *exsync.Map[string, *vocab.Actor]) {
	var wg sync.WaitGroup
	for _, uri := range mentionURIs {
		wg.Add(1)
		go func(uri string) {
			defer wg.Done()
			actor, ok := cache.Get(uri)
			if !ok {
				var err error
				actor, err = b.fed.ResolveActor(ctx, uri)
				if err != nil || actor == nil {
					b.log.Warn().Err(err).Str("actor_uri", uri).Msg("Failed to resolve mentioned actor for delivery")
					return
				}
				cache.Set(uri, actor)
			}
			err := b.fed.SendActivity(ctx, activity, []*vocab.Actor{actor}, SendOptions{})
			if err != nil {
				b.log.Warn().Err(err).
					Str("activity_id", activity.ID).
					Str("actor_uri", uri).
					Msg("Delivery to mentioned actor failed")
			}
		}(uri)
	}
	wg.Wait()
}
