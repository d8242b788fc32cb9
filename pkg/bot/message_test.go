// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/aiku/fedibot/pkg/bot/vocab"
)

func TestDeriveVisibility(t *testing.T) {
	t.Parallel()
	const followers = "https://bot.test/users/bot/followers"
	cases := []struct {
		name string
		to   []string
		cc   []string
		want Visibility
	}{
		{"public in to", []string{vocab.PublicCollection}, nil, VisibilityPublic},
		{"public in cc", []string{followers}, []string{vocab.PublicCollection}, VisibilityPublic},
		{"followers only", []string{followers}, nil, VisibilityFollowers},
		{"followers in cc", nil, []string{followers}, VisibilityFollowers},
		{"direct", []string{"https://x.test/users/alice"}, nil, VisibilityDirect},
		{"empty", nil, nil, VisibilityDirect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := deriveVisibility(tc.to, tc.cc, followers); got != tc.want {
				t.Errorf("deriveVisibility(%v, %v) = %q, want %q", tc.to, tc.cc, got, tc.want)
			}
		})
	}
}

func TestMaterializeWithoutEnvelope(t *testing.T) {
	t.Parallel()
	fed := newFakeFederation()
	b := newTestBot(t, fed, Handlers{})
	msg := b.materialize(&vocab.Note{ID: "https://x.test/notes/1", Type: vocab.KindNote}, nil, false)
	if msg.Visibility() != VisibilityUnknown {
		t.Errorf("Visibility = %q, want unknown for bare object", msg.Visibility())
	}
}

func TestReplyInheritsVisibility(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fed := newFakeFederation()
	b := newTestBot(t, fed, Handlers{})

	parent, err := b.Publish(ctx, "original", PublishOptions{Visibility: VisibilityFollowers})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	reply, err := parent.Reply(ctx, "follow-up", PublishOptions{})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Visibility() != VisibilityFollowers {
		t.Errorf("reply visibility = %q, want inherited followers", reply.Visibility())
	}
	if got := reply.Raw().InReplyTo.String(); got != parent.ID() {
		t.Errorf("inReplyTo = %q, want %q", got, parent.ID())
	}

	// An explicit visibility on the reply wins over inheritance.
	loud, err := parent.Reply(ctx, "to everyone", PublishOptions{Visibility: VisibilityPublic})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if loud.Visibility() != VisibilityPublic {
		t.Errorf("explicit reply visibility = %q, want public", loud.Visibility())
	}
}

func TestReplyPrefillsTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fed := newFakeFederation()
	b := newTestBot(t, fed, Handlers{})

	parent, err := b.Publish(ctx, "root", PublishOptions{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	reply, err := parent.Reply(ctx, "child", PublishOptions{})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	target, err := reply.ReplyTarget(ctx)
	if err != nil {
		t.Fatalf("ReplyTarget: %v", err)
	}
	// Reply pre-fills the strong reference, so traversal returns the
	// parent instance without a store lookup.
	if target != parent {
		t.Errorf("ReplyTarget = %p, want the parent instance %p", target, parent)
	}
}

func TestReplyTargetResolvesLocally(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fed := newFakeFederation()
	b := newTestBot(t, fed, Handlers{})

	parent, err := b.Publish(ctx, "thread root", PublishOptions{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	reply, err := parent.Reply(ctx, "child", PublishOptions{})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	// Rebuild the reply from storage so the pre-filled target is gone and
	// the weak reference has to resolve through the outbox.
	id, ok := b.localRecordID(reply.ID())
	if !ok {
		t.Fatalf("reply id %q is not local", reply.ID())
	}
	envelope, err := b.Outbox().Get(ctx, id)
	if err != nil || envelope == nil {
		t.Fatalf("Outbox.Get: %v", err)
	}
	note, err := envelope.ObjectNote()
	if err != nil {
		t.Fatalf("ObjectNote: %v", err)
	}
	reloaded := b.materialize(note, envelope, true)

	target, err := reloaded.ReplyTarget(ctx)
	if err != nil {
		t.Fatalf("ReplyTarget: %v", err)
	}
	if target == nil || target.ID() != parent.ID() {
		t.Fatalf("ReplyTarget = %v, want parent %s", target, parent.ID())
	}
}

func TestReplyTargetResolvesRemotely(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fed := newFakeFederation()
	remote := &vocab.Note{
		ID:           "https://x.test/notes/42",
		Type:         vocab.KindNote,
		AttributedTo: vocab.IRI(aliceURI),
		Content:      "<p>remote post</p>",
	}
	fed.Objects[remote.ID] = remote
	b := newTestBot(t, fed, Handlers{})

	msg := b.materialize(&vocab.Note{
		ID:        "https://y.test/notes/7",
		Type:      vocab.KindNote,
		InReplyTo: vocab.IRI(remote.ID),
	}, nil, false)

	target, err := msg.ReplyTarget(ctx)
	if err != nil {
		t.Fatalf("ReplyTarget: %v", err)
	}
	if target == nil || target.ID() != remote.ID {
		t.Fatalf("ReplyTarget = %v, want remote note", target)
	}
	if target.Visibility() != VisibilityUnknown {
		t.Errorf("remote target visibility = %q, want unknown", target.Visibility())
	}

	// Not a reply at all.
	root := b.materialize(&vocab.Note{ID: "https://y.test/notes/8", Type: vocab.KindNote}, nil, false)
	target, err = root.ReplyTarget(ctx)
	if err != nil || target != nil {
		t.Errorf("ReplyTarget on non-reply = (%v, %v), want (nil, nil)", target, err)
	}
}

func TestDeleteOwnMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fed := newFakeFederation()
	b := newTestBot(t, fed, Handlers{})
	if _, err := b.Followers().AddFollower(ctx, "https://y.test/users/bob", nil); err != nil {
		t.Fatalf("AddFollower: %v", err)
	}

	msg, err := b.Publish(ctx, "oops", PublishOptions{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	fed.Reset()

	if err := msg.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	id, _ := b.localRecordID(msg.ID())
	envelope, err := b.Outbox().Get(ctx, id)
	if err != nil {
		t.Fatalf("Outbox.Get: %v", err)
	}
	if envelope != nil {
		t.Error("envelope still stored after Delete")
	}
	deletes := fed.SentOfType(vocab.KindDelete)
	if len(deletes) != 1 {
		t.Fatalf("got %d Delete deliveries, want 1", len(deletes))
	}
	if got := deletes[0].Activity.ObjectID(); got != msg.ID() {
		t.Errorf("Delete object = %q, want %q", got, msg.ID())
	}
}

func TestDeleteForeignMessageIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fed := newFakeFederation()
	b := newTestBot(t, fed, Handlers{})
	if _, err := b.Followers().AddFollower(ctx, "https://y.test/users/bob", nil); err != nil {
		t.Fatalf("AddFollower: %v", err)
	}

	foreign := b.materialize(&vocab.Note{
		ID:           "https://x.test/notes/9",
		Type:         vocab.KindNote,
		AttributedTo: vocab.IRI(aliceURI),
	}, nil, false)
	if err := foreign.Delete(ctx); err != nil {
		t.Fatalf("Delete on foreign message: %v", err)
	}
	if sent := fed.Sent(); len(sent) != 0 {
		t.Errorf("foreign delete produced %d deliveries, want 0", len(sent))
	}
}

func TestShareAndUnshare(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fed := newFakeFederation()
	b := newTestBot(t, fed, Handlers{})
	if _, err := b.Followers().AddFollower(ctx, "https://y.test/users/bob", nil); err != nil {
		t.Fatalf("AddFollower: %v", err)
	}

	remote := b.materialize(&vocab.Note{
		ID:           "https://x.test/notes/42",
		Type:         vocab.KindNote,
		AttributedTo: vocab.IRI(aliceURI),
	}, nil, false)

	shared, err := remote.Share(ctx)
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if shared.TargetID() != remote.ID() {
		t.Errorf("TargetID = %q, want %q", shared.TargetID(), remote.ID())
	}

	announces := fed.SentOfType(vocab.KindAnnounce)
	if len(announces) != 1 {
		t.Fatalf("got %d Announce deliveries, want 1", len(announces))
	}
	ann := announces[0].Activity
	if got := ann.ObjectID(); got != remote.ID() {
		t.Errorf("Announce object = %q, want %q", got, remote.ID())
	}
	if !reflect.DeepEqual(ann.To, []string{vocab.PublicCollection}) {
		t.Errorf("Announce to = %v, want public sentinel", ann.To)
	}
	if !containsAddress(ann.CC, b.FollowersURI()) || !containsAddress(ann.CC, aliceURI) {
		t.Errorf("Announce cc = %v, want followers and original author", ann.CC)
	}

	// The announce is stored like any published envelope.
	id, ok := b.localRecordID(shared.ID())
	if !ok {
		t.Fatalf("announce id %q is not local", shared.ID())
	}
	if env, err := b.Outbox().Get(ctx, id); err != nil || env == nil {
		t.Fatalf("announce not stored: %v", err)
	}

	fed.Reset()
	if err := shared.Unshare(ctx); err != nil {
		t.Fatalf("Unshare: %v", err)
	}
	undos := fed.SentOfType(vocab.KindUndo)
	if len(undos) != 1 {
		t.Fatalf("got %d Undo deliveries, want 1", len(undos))
	}
	var undone vocab.Activity
	if err := json.Unmarshal(undos[0].Activity.Object, &undone); err != nil {
		t.Fatalf("Undo object does not embed the announce: %v", err)
	}
	if undone.ID != shared.ID() || undone.Type != vocab.KindAnnounce {
		t.Errorf("Undo wraps %s %q, want the announce", undone.Type, undone.ID)
	}
	if env, err := b.Outbox().Get(ctx, id); err != nil || env != nil {
		t.Errorf("announce still stored after Unshare (env=%v err=%v)", env, err)
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"<p>hello <strong>world</strong></p>", "hello world"},
		{"<p>line one<br>line two</p>", "line one\nline two"},
		{"<p>a &amp; b</p>", "a & b"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := stripHTML(tc.in); got != tc.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
