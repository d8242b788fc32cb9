// Copyright 2024-2026 Aiku AI

// Package bot implements a federated social bot runtime: it receives
// inbound social-graph activities (follows, unfollows, incoming
// messages), maintains the bot-owned state (follower set, follow-request
// index, published envelopes), and publishes outbound messages with
// timeline-style address-list semantics.
//
// # Core Types
//
// [Bot] owns the runtime: construct it once with [New], passing the
// ordered key-value [store.Store], the [FederationClient] transport
// capability, and an immutable [Handlers] set; all event callbacks are
// registered up front.
//
// [FollowerRepo] is the only shared mutable state. Mutations of the
// follower list are serialized through the repository and versioned in
// storage, so concurrent inbound Follow/Undo deliveries never corrupt the
// set.
//
// [Message] is the domain view over a raw protocol object: visibility
// derived from its address lists, lazily computed text, a weak reply
// reference, and the Reply/Share/Delete operations. [SharedMessage] is a
// deliberately disjoint type owning only an announce lifecycle.
//
// # Pipelines
//
// Outbound: [Bot.Publish] renders a markdown document (package textfmt),
// computes the to/cc audience for the requested visibility, persists the
// Create envelope under a time-ordered record id, and fans out delivery
// to followers and mentioned actors. Once the envelope is persisted the
// publish has succeeded; delivery failures are logged per recipient.
//
// Inbound: [Bot.DispatchActivity] routes Follow, Undo and Create
// envelopes; [Bot.LookupObject] answers remote dereferences of ids the
// bot minted.
//
// # Sub-packages
//
//   - textfmt renders markdown to HTML/plain text and extracts mention
//     and hashtag references.
//   - vocab holds the ActivityStreams object model.
package bot
