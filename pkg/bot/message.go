// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.mau.fi/util/ptr"

	"github.com/aiku/fedibot/pkg/bot/vocab"
)

// Visibility is the audience class of a message.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityUnlisted  Visibility = "unlisted"
	VisibilityFollowers Visibility = "followers"
	VisibilityDirect    Visibility = "direct"
	VisibilityUnknown   Visibility = "unknown"
)

// Message is the domain view over a raw content object and its envelope.
// Immutable after materialization; the plain-text and HTML forms are
// computed on first access and cached per instance.
type Message struct {
	bot      *Bot
	note     *vocab.Note
	envelope *vocab.Activity
	// authored is set exactly when this message came out of this bot's
	// own publish pipeline, or was reconstructed from a locally stored
	// envelope whose attribution matches the bot's actor. It gates
	// Delete.
	authored   bool
	visibility Visibility

	textOnce sync.Once
	text     string

	// replyTarget is pre-filled when the message was created through
	// Reply; otherwise the weak inReplyTo reference resolves lazily.
	replyTarget *Message
}

// materialize wraps a raw object into the domain view. envelope may be
// nil for bare objects, in which case visibility is unknown.
func (b *Bot) materialize(note *vocab.Note, envelope *vocab.Activity, authored bool) *Message {
	m := &Message{
		bot:        b,
		note:       note,
		envelope:   envelope,
		authored:   authored,
		visibility: VisibilityUnknown,
	}
	if envelope != nil {
		m.visibility = deriveVisibility(envelope.To, envelope.CC, b.followersURI)
	}
	return m
}

// deriveVisibility inspects envelope address lists against the public
// collection sentinel and the bot's own followers collection.
func deriveVisibility(to, cc []string, followersURI string) Visibility {
	if containsAddress(to, vocab.PublicCollection) || containsAddress(cc, vocab.PublicCollection) {
		return VisibilityPublic
	}
	if followersURI != "" && (containsAddress(to, followersURI) || containsAddress(cc, followersURI)) {
		return VisibilityFollowers
	}
	return VisibilityDirect
}

func containsAddress(list []string, addr string) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// ID is the object URI of the message.
func (m *Message) ID() string {
	return m.note.ID
}

// AuthorURI is the actor the message is attributed to.
func (m *Message) AuthorURI() string {
	return m.note.AttributedTo.String()
}

// Visibility derived from the envelope's address lists; unknown when the
// message had no recognizable envelope.
func (m *Message) Visibility() Visibility {
	return m.visibility
}

// Language returns the message's language tag, empty when untagged.
func (m *Message) Language() string {
	for lang := range m.note.ContentMap {
		return lang
	}
	return ""
}

// HTML is the rendered content of the message.
func (m *Message) HTML() string {
	if m.note.Content != "" {
		return m.note.Content
	}
	for _, content := range m.note.ContentMap {
		return content
	}
	return ""
}

// Text is the plain-text form, stripped from the HTML content on first
// access and cached.
func (m *Message) Text() string {
	m.textOnce.Do(func() {
		m.text = stripHTML(m.HTML())
	})
	return m.text
}

// Mentions returns the mention tags in document order.
func (m *Message) Mentions() []vocab.Tag {
	return m.tagsOfKind(vocab.KindMention)
}

// Hashtags returns the hashtag tags in document order.
func (m *Message) Hashtags() []vocab.Tag {
	return m.tagsOfKind(vocab.KindHashtag)
}

func (m *Message) tagsOfKind(kind vocab.Kind) []vocab.Tag {
	var tags []vocab.Tag
	for _, t := range m.note.Tag {
		if t.Type == kind {
			tags = append(tags, t)
		}
	}
	return tags
}

// Attachments returns the media attached to the message.
func (m *Message) Attachments() []vocab.Attachment {
	return m.note.Attachment
}

// Published returns the publish timestamp, zero when absent.
func (m *Message) Published() time.Time {
	if m.note.Published == nil {
		return time.Time{}
	}
	return *m.note.Published
}

// Raw exposes the underlying content object.
func (m *Message) Raw() *vocab.Note {
	return m.note
}

// ReplyTarget resolves the message this one replies to. The reference is
// weak: nothing is held in memory until traversal, and traversal looks
// the parent up one hop at a time. Returns (nil, nil) when the message is
// not a reply or the target is gone.
func (m *Message) ReplyTarget(ctx context.Context) (*Message, error) {
	if m.replyTarget != nil {
		return m.replyTarget, nil
	}
	parentURI := m.note.InReplyTo.String()
	if parentURI == "" {
		return nil, nil
	}
	// A parent this bot minted lives in the outbox; anything else
	// resolves through the federation client.
	if id, ok := m.bot.localRecordID(parentURI); ok {
		envelope, err := m.bot.outbox.Get(ctx, id)
		if err != nil || envelope == nil {
			return nil, err
		}
		note, err := envelope.ObjectNote()
		if err != nil {
			return nil, nil
		}
		return m.bot.materialize(note, envelope, true), nil
	}
	note, err := m.bot.fed.ResolveObject(ctx, parentURI)
	if err != nil || note == nil {
		return nil, err
	}
	return m.bot.materialize(note, nil, false), nil
}

// Reply publishes a response to this message. Visibility defaults to this
// message's own visibility and the reply target to this message; other
// options pass through to Publish.
func (m *Message) Reply(ctx context.Context, doc string, opts PublishOptions) (*Message, error) {
	if opts.Visibility == "" && m.visibility != VisibilityUnknown {
		opts.Visibility = m.visibility
	}
	opts.ReplyTarget = m
	reply, err := m.bot.Publish(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	// Pre-fill the strong reference so immediate traversal skips the
	// store round-trip.
	reply.replyTarget = m
	return reply, nil
}

// Share announces this message to the bot's followers. The returned
// SharedMessage owns the announce lifecycle; it is deliberately a
// distinct type from Message.
func (m *Message) Share(ctx context.Context) (*SharedMessage, error) {
	b := m.bot
	id := b.clock.Next()
	now := id.Time()

	object, err := vocab.WrapObject(m.note.ID)
	if err != nil {
		return nil, err
	}
	announce := &vocab.Activity{
		Context:   vocab.ActivityStreamsContext,
		ID:        b.fed.ObjectURI(b.cfg.Identifier, id.String()),
		Type:      vocab.KindAnnounce,
		Actor:     vocab.IRI(b.actorURI),
		To:        []string{vocab.PublicCollection},
		CC:        []string{b.followersURI, m.AuthorURI()},
		Published: ptr.Ptr(now),
		Object:    object,
	}
	if err := b.outbox.Put(ctx, id, announce); err != nil {
		return nil, err
	}
	b.deliverToFollowers(ctx, announce)
	return &SharedMessage{bot: b, id: id, envelope: announce, targetID: m.note.ID}, nil
}

// Delete retracts a self-authored message: the stored envelope is removed
// and a Delete activity goes out to the followers audience. On a message
// authored by someone else this is a silent no-op; the protocol cannot
// enforce deletion of another actor's object anyway.
func (m *Message) Delete(ctx context.Context) error {
	if !m.authored {
		m.bot.log.Debug().Str("object_id", m.note.ID).Msg("Ignoring delete of foreign message")
		return nil
	}
	b := m.bot
	if id, ok := b.localRecordID(m.note.ID); ok {
		if err := b.outbox.Delete(ctx, id); err != nil {
			return err
		}
	}
	object, err := vocab.WrapObject(m.note.ID)
	if err != nil {
		return err
	}
	deleteAct := &vocab.Activity{
		Context:   vocab.ActivityStreamsContext,
		ID:        m.note.ID + "#delete",
		Type:      vocab.KindDelete,
		Actor:     vocab.IRI(b.actorURI),
		To:        m.note.To,
		CC:        m.note.CC,
		Published: ptr.Ptr(time.Now().UTC()),
		Object:    object,
	}
	b.deliverToFollowers(ctx, deleteAct)
	return nil
}

// SharedMessage is a pointer-with-lifecycle: "this bot announced message
// X". It owns only the announce envelope and the retraction operation.
type SharedMessage struct {
	bot      *Bot
	id       RecordID
	envelope *vocab.Activity
	targetID string
}

// ID is the URI of the announce envelope.
func (sm *SharedMessage) ID() string {
	return sm.envelope.ID
}

// TargetID is the id of the message that was shared.
func (sm *SharedMessage) TargetID() string {
	return sm.targetID
}

// Unshare retracts the announce: an Undo goes out to the original
// audience and the stored envelope is removed.
func (sm *SharedMessage) Unshare(ctx context.Context) error {
	b := sm.bot
	object, err := vocab.WrapObject(sm.envelope)
	if err != nil {
		return err
	}
	undo := &vocab.Activity{
		Context:   vocab.ActivityStreamsContext,
		ID:        sm.envelope.ID + "#undo",
		Type:      vocab.KindUndo,
		Actor:     vocab.IRI(b.actorURI),
		To:        sm.envelope.To,
		CC:        sm.envelope.CC,
		Published: ptr.Ptr(time.Now().UTC()),
		Object:    object,
	}
	b.deliverToFollowers(ctx, undo)
	return b.outbox.Delete(ctx, sm.id)
}

// localRecordID extracts the RecordID from a URI this bot minted. ok is
// false for foreign or malformed URIs.
func (b *Bot) localRecordID(uri string) (RecordID, bool) {
	slash := strings.LastIndexByte(uri, '/')
	if slash < 0 || slash == len(uri)-1 {
		return "", false
	}
	candidate := uri[slash+1:]
	if b.fed.ObjectURI(b.cfg.Identifier, candidate) != uri {
		return "", false
	}
	id, err := ParseRecordID(candidate)
	if err != nil {
		return "", false
	}
	return id, true
}

var (
	htmlBreakRe = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</blockquote>|</li>|</h[1-6]>|</pre>`)
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
)

// stripHTML reduces rendered content to plain text: block boundaries
// become newlines, remaining tags drop, entities unescape.
func stripHTML(content string) string {
	if content == "" {
		return ""
	}
	text := htmlBreakRe.ReplaceAllString(content, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	return strings.TrimSpace(text)
}
