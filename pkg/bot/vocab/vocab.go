// Copyright 2024-2026 Aiku AI

// Package vocab holds the ActivityStreams object model the bot runtime
// speaks: actors, notes, and the closed set of activity envelopes
// (Create, Announce, Follow, Undo, Accept, Delete).
//
// The model is deliberately narrow. Fields that can appear on the wire as
// either a bare IRI string or an embedded object decode through [IRI],
// which keeps only the id; the runtime resolves references lazily when it
// actually needs the object.
package vocab

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActivityStreamsContext is the JSON-LD context emitted on outbound objects.
const ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"

// PublicCollection is the well-known sentinel address meaning "anyone".
// Its presence in an object's to/cc lists marks public addressing.
const PublicCollection = "https://www.w3.org/ns/activitystreams#Public"

// Kind is a protocol object type. The dispatch router switches over the
// activity kinds; anything outside the closed set below is ignored.
type Kind string

const (
	KindCreate   Kind = "Create"
	KindAnnounce Kind = "Announce"
	KindFollow   Kind = "Follow"
	KindUndo     Kind = "Undo"
	KindAccept   Kind = "Accept"
	KindDelete   Kind = "Delete"

	KindNote    Kind = "Note"
	KindArticle Kind = "Article"

	KindMention Kind = "Mention"
	KindHashtag Kind = "Hashtag"
)

// IRI is an object reference that may appear on the wire either as a bare
// string or as an embedded object; only the id survives decoding.
type IRI string

func (r *IRI) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = IRI(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("reference is neither string nor object: %w", err)
	}
	*r = IRI(obj.ID)
	return nil
}

func (r IRI) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

func (r IRI) String() string {
	return string(r)
}

// Actor is a remote (or local) federated identity with the display
// attributes the bot caches alongside its URI.
type Actor struct {
	Context           any    `json:"@context,omitempty"`
	ID                string `json:"id"`
	Type              string `json:"type,omitempty"`
	PreferredUsername string `json:"preferredUsername,omitempty"`
	Name              string `json:"name,omitempty"`
	Summary           string `json:"summary,omitempty"`
	Inbox             string `json:"inbox,omitempty"`
	Outbox            string `json:"outbox,omitempty"`
	Followers         string `json:"followers,omitempty"`
	Endpoints         *Endpoints `json:"endpoints,omitempty"`
	Icon              *Image     `json:"icon,omitempty"`
}

// Endpoints carries the server-wide delivery endpoints advertised on an
// actor.
type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// Image is an avatar or header reference on an actor.
type Image struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Handle returns the @user@host form of the actor when enough information
// is present, falling back to the bare id.
func (a *Actor) Handle() string {
	if a.PreferredUsername == "" {
		return a.ID
	}
	if host := hostOf(a.ID); host != "" {
		return "@" + a.PreferredUsername + "@" + host
	}
	return "@" + a.PreferredUsername
}

func hostOf(uri string) string {
	rest, ok := cutScheme(uri)
	if !ok {
		return ""
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return rest
}

func cutScheme(uri string) (string, bool) {
	for _, scheme := range []string{"https://", "http://"} {
		if len(uri) > len(scheme) && uri[:len(scheme)] == scheme {
			return uri[len(scheme):], true
		}
	}
	return "", false
}

// Tag is a mention or hashtag attached to a note.
type Tag struct {
	Type Kind   `json:"type"`
	Href string `json:"href,omitempty"`
	Name string `json:"name,omitempty"`
}

// Attachment is a media document attached to a note.
type Attachment struct {
	Type      string `json:"type,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Note is the content object the bot publishes and receives. Article uses
// the same shape with a different Kind.
type Note struct {
	Context      any               `json:"@context,omitempty"`
	ID           string            `json:"id"`
	Type         Kind              `json:"type"`
	AttributedTo IRI               `json:"attributedTo,omitempty"`
	Content      string            `json:"content,omitempty"`
	ContentMap   map[string]string `json:"contentMap,omitempty"`
	To           []string          `json:"to,omitempty"`
	CC           []string          `json:"cc,omitempty"`
	Tag          []Tag             `json:"tag,omitempty"`
	Attachment   []Attachment      `json:"attachment,omitempty"`
	InReplyTo    IRI               `json:"inReplyTo,omitempty"`
	Published    *time.Time        `json:"published,omitempty"`
	Updated      *time.Time        `json:"updated,omitempty"`
}

// Activity is the protocol envelope wrapped around objects. Object is kept
// raw because its shape depends on the activity kind: an embedded Note for
// Create, a bare id for Announce/Delete, an embedded Follow for Undo and
// Accept.
type Activity struct {
	Context   any             `json:"@context,omitempty"`
	ID        string          `json:"id"`
	Type      Kind            `json:"type"`
	Actor     IRI             `json:"actor,omitempty"`
	To        []string        `json:"to,omitempty"`
	CC        []string        `json:"cc,omitempty"`
	Published *time.Time      `json:"published,omitempty"`
	Object    json.RawMessage `json:"object,omitempty"`
}

// DecodeActivity parses an inbound activity envelope. It validates only
// that a type is present; kind-specific validation happens in the
// dispatch handlers.
func DecodeActivity(data []byte) (*Activity, error) {
	var act Activity
	if err := json.Unmarshal(data, &act); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity: %w", err)
	}
	if act.Type == "" {
		return nil, fmt.Errorf("activity has no type")
	}
	return &act, nil
}

// ObjectID returns the id of the wrapped object, whether it is embedded or
// a bare reference. Empty when absent or unparseable.
func (a *Activity) ObjectID() string {
	if len(a.Object) == 0 {
		return ""
	}
	var ref IRI
	if err := json.Unmarshal(a.Object, &ref); err != nil {
		return ""
	}
	return ref.String()
}

// ObjectNote decodes the wrapped object as a Note. Used on Create
// envelopes where the content object is embedded.
func (a *Activity) ObjectNote() (*Note, error) {
	if len(a.Object) == 0 {
		return nil, fmt.Errorf("activity %s has no object", a.ID)
	}
	var note Note
	if err := json.Unmarshal(a.Object, &note); err != nil {
		return nil, fmt.Errorf("failed to unmarshal object of %s: %w", a.ID, err)
	}
	return &note, nil
}

// ObjectActivity decodes the wrapped object as a nested activity. Used on
// Undo envelopes, where the undone activity may be embedded.
func (a *Activity) ObjectActivity() (*Activity, error) {
	if len(a.Object) == 0 {
		return nil, fmt.Errorf("activity %s has no object", a.ID)
	}
	var nested Activity
	if err := json.Unmarshal(a.Object, &nested); err != nil {
		return nil, fmt.Errorf("failed to unmarshal object of %s: %w", a.ID, err)
	}
	return &nested, nil
}

// WrapObject embeds an object into an activity envelope.
func WrapObject(obj any) (json.RawMessage, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedded object: %w", err)
	}
	return data, nil
}
