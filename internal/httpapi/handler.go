// Package httpapi exposes the conversation backend over HTTP. Authentication
// itself is an external concern: callers arrive with a resolved identity in
// the X-User-ID header and every operation is scoped to that owner.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jmoura/parley/internal/chat"
	"github.com/jmoura/parley/internal/limiter"
	"github.com/jmoura/parley/internal/provider"
	"github.com/jmoura/parley/internal/store"
)

type Handler struct {
	store    store.Store
	coord    *chat.Coordinator
	limit    *limiter.Limiter
	validate *validator.Validate
}

func NewHandler(s store.Store, coord *chat.Coordinator, lim *limiter.Limiter) *Handler {
	return &Handler{
		store:    s,
		coord:    coord,
		limit:    lim,
		validate: validator.New(),
	}
}

// Routes returns the /api router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireIdentity)

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.handleCreateConversation)
		r.Get("/", h.handleListConversations)
		r.Get("/{id}", h.handleGetConversation)
		r.Patch("/{id}", h.handleRenameConversation)
		r.Delete("/{id}", h.handleDeleteConversation)
		r.Get("/{id}/messages", h.handleListMessages)
		r.Get("/{id}/export", h.handleExportConversation)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/message", h.handleSendMessage)
		r.Post("/stream", h.handleStreamMessage)
		r.Post("/regenerate", h.handleRegenerate)
	})

	r.Put("/messages/{id}", h.handleEditMessage)
	r.Delete("/messages/{id}", h.handleDeleteMessage)

	r.Post("/attachments", h.handleCreateAttachment)

	r.Get("/settings", h.handleGetSettings)
	r.Put("/settings", h.handleUpdateSettings)

	return r
}

// --- identity ---

type ctxKey int

const ownerKey ctxKey = iota

func withOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}

func (h *Handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-User-ID")
		if owner == "" {
			respondError(w, http.StatusUnauthorized, "Missing identity")
			return
		}
		ctx := withOwner(r.Context(), owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limit.Allow(ownerID(r)) {
			respondError(w, http.StatusTooManyRequests, "Too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- shared helpers ---

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

// writeOpError maps coordinator errors onto the response envelope.
func writeOpError(w http.ResponseWriter, err error) {
	var upstream *provider.UpstreamError
	switch {
	case errors.Is(err, chat.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, chat.ErrInvalidOperation):
		respondError(w, http.StatusBadRequest, "Invalid operation")
	case errors.Is(err, chat.ErrForbidden):
		respondError(w, http.StatusForbidden, "Unauthorized")
	case errors.As(err, &upstream):
		slog.Error("upstream provider failure", "error", err)
		respondError(w, http.StatusBadGateway, "Failed to get response from the model")
	default:
		slog.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
