// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aiku/fedibot/pkg/bot"
	"github.com/aiku/fedibot/pkg/bot/vocab"
)

// maxActivityBodySize caps inbound activity payloads (1 MB).
const maxActivityBodySize = 1 << 20

const activityContentType = "application/activity+json"

// newHTTPHandler builds the daemon's HTTP surface: the activity inbox,
// object dereference for minted ids, and the followers/outbox listings.
func newHTTPHandler(b *bot.Bot, log zerolog.Logger) http.Handler {
	h := &httpHandler{bot: b, log: log.With().Str("component", "http").Logger()}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /inbox", h.handleInbox)
	mux.HandleFunc("GET /objects/{id}", h.handleObject)
	mux.HandleFunc("GET /followers", h.handleFollowers)
	mux.HandleFunc("GET /outbox", h.handleOutbox)
	return mux
}

type httpHandler struct {
	bot *bot.Bot
	log zerolog.Logger
}

func (h *httpHandler) handleInbox(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxActivityBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	err = h.bot.DispatchActivity(r.Context(), body)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, bot.ErrInvalidReference):
		http.Error(w, "invalid actor reference", http.StatusBadRequest)
	default:
		// Handler and storage errors surface as 5xx so the remote
		// server retries the delivery.
		h.log.Error().Err(err).Msg("Inbound activity failed")
		http.Error(w, "delivery processing failed", http.StatusInternalServerError)
	}
}

// objectKinds is the probe order when a dereference does not name a type.
var objectKinds = []vocab.Kind{vocab.KindNote, vocab.KindArticle, vocab.KindCreate, vocab.KindAnnounce}

func (h *httpHandler) handleObject(w http.ResponseWriter, r *http.Request) {
	rawID := r.PathValue("id")

	kinds := objectKinds
	if t := r.URL.Query().Get("type"); t != "" {
		kinds = []vocab.Kind{vocab.Kind(t)}
	}
	for _, kind := range kinds {
		obj, err := h.bot.LookupObject(r.Context(), kind, rawID)
		if err != nil {
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		if obj != nil {
			writeJSON(w, h.log, obj)
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

// followersPage is the wire shape of one followers window.
type followersPage struct {
	Type         string            `json:"type"`
	TotalItems   int               `json:"totalItems"`
	OrderedItems []json.RawMessage `json:"orderedItems"`
	Next         string            `json:"next,omitempty"`
}

func (h *httpHandler) handleFollowers(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 40)

	page, err := h.bot.Followers().ListFollowers(r.Context(), cursor, limit)
	if err != nil {
		http.Error(w, "listing failed", http.StatusInternalServerError)
		return
	}
	total, err := h.bot.Followers().Count(r.Context())
	if err != nil {
		http.Error(w, "listing failed", http.StatusInternalServerError)
		return
	}

	resp := followersPage{Type: "OrderedCollectionPage", TotalItems: total, Next: page.NextCursor}
	for _, entry := range page.Entries {
		snapshot := entry.Snapshot
		if len(snapshot) == 0 {
			snapshot, _ = json.Marshal(map[string]string{"id": entry.URI})
		}
		resp.OrderedItems = append(resp.OrderedItems, snapshot)
	}
	writeJSON(w, h.log, resp)
}

// outboxPage is the wire shape of one outbox window.
type outboxPage struct {
	Type         string            `json:"type"`
	OrderedItems []*vocab.Activity `json:"orderedItems"`
	Next         string            `json:"next,omitempty"`
}

func (h *httpHandler) handleOutbox(w http.ResponseWriter, r *http.Request) {
	var cursor bot.RecordID
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := bot.ParseRecordID(raw)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	limit := queryInt(r, "limit", 20)

	order := bot.OrderDescending
	if r.URL.Query().Get("order") == "asc" {
		order = bot.OrderAscending
	}

	envelopes, next, err := h.bot.Outbox().List(r.Context(), order, cursor, limit)
	if err != nil {
		http.Error(w, "listing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.log, outboxPage{Type: "OrderedCollectionPage", OrderedItems: envelopes, Next: next.String()})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, payload any) {
	w.Header().Set("Content-Type", activityContentType)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

// loggingHandlers wires event callbacks that only log, which is what the
// dry-run daemon can usefully do with inbound events.
func loggingHandlers(log zerolog.Logger) bot.Handlers {
	evt := log.With().Str("component", "events").Logger()
	return bot.Handlers{
		OnFollow: func(_ context.Context, actor *vocab.Actor) error {
			evt.Info().Str("actor", actor.ID).Str("handle", actor.Handle()).Msg("Followed")
			return nil
		},
		OnUnfollow: func(_ context.Context, actor *vocab.Actor) error {
			evt.Info().Str("actor", actor.ID).Msg("Unfollowed")
			return nil
		},
		OnReply: func(_ context.Context, msg *bot.Message) error {
			evt.Info().Str("object_id", msg.ID()).Str("author", msg.AuthorURI()).Str("text", msg.Text()).Msg("Reply received")
			return nil
		},
		OnMention: func(_ context.Context, msg *bot.Message) error {
			evt.Info().Str("object_id", msg.ID()).Str("author", msg.AuthorURI()).Str("text", msg.Text()).Msg("Mention received")
			return nil
		},
		OnMessage: func(_ context.Context, msg *bot.Message) error {
			evt.Info().Str("object_id", msg.ID()).Str("author", msg.AuthorURI()).Msg("Message received")
			return nil
		},
	}
}
