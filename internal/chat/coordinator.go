package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoura/parley/internal/provider"
	"github.com/jmoura/parley/internal/relay"
	"github.com/jmoura/parley/internal/store"
)

// lastMessagePreviewLen bounds the denormalized conversation preview.
const lastMessagePreviewLen = 100

// Generator abstracts the upstream provider client.
type Generator interface {
	Complete(ctx context.Context, entries []provider.Entry, opts provider.Options) (*provider.Result, error)
	Stream(ctx context.Context, entries []provider.Entry, opts provider.Options) (provider.FragmentSource, error)
}

// Defaults are the generation settings used when an owner has no stored
// preferences.
type Defaults struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	ContextBudget int
	SystemPrompt  string
}

// Coordinator drives one conversation turn end to end: persist the inbound
// user turn, assemble bounded context, call the provider, persist the reply,
// refresh the conversation summary. It also implements edit, delete, and
// regenerate semantics.
type Coordinator struct {
	store    store.Store
	gen      Generator
	defaults Defaults
}

func NewCoordinator(s store.Store, gen Generator, defaults Defaults) *Coordinator {
	return &Coordinator{store: s, gen: gen, defaults: defaults}
}

// SubmitTurn handles a non-streaming submission. The user turn is persisted
// before the upstream call so it survives a generation failure; a
// conversation may legitimately hold a user turn with no paired reply.
func (c *Coordinator) SubmitTurn(ctx context.Context, ownerID, conversationID, text string, attachmentIDs []string) (*store.Turn, *store.Turn, error) {
	conv, err := c.ownedConversation(ownerID, conversationID)
	if err != nil {
		return nil, nil, err
	}

	userTurn, history, err := c.recordUserTurn(conversationID, text, attachmentIDs)
	if err != nil {
		return nil, nil, err
	}

	opts, directive := c.generationSettings(ownerID)
	entries := AssembleContext(history, directive, c.defaults.ContextBudget)

	res, err := c.gen.Complete(ctx, entries, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("complete: %w", err)
	}

	assistant := &store.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        res.Content,
		Meta: &store.TurnMeta{
			Model:       res.Model,
			Temperature: opts.Temperature,
			Tokens:      res.Tokens,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.InsertTurn(assistant); err != nil {
		return nil, nil, fmt.Errorf("persisting assistant turn: %w", err)
	}

	if err := c.refreshSummary(conv, text); err != nil {
		return nil, nil, err
	}
	return userTurn, assistant, nil
}

// SubmitTurnStream handles a streaming submission. The assistant turn is
// persisted from the relay completion callback, so the client has already
// seen the full text when the durable write happens. A write failure at that
// point is logged and not surfaced: the client holds the complete response
// and the store is momentarily behind it.
func (c *Coordinator) SubmitTurnStream(ctx context.Context, ownerID, conversationID, text string, attachmentIDs []string, sink relay.Sink) error {
	conv, err := c.ownedConversation(ownerID, conversationID)
	if err != nil {
		return err
	}

	_, history, err := c.recordUserTurn(conversationID, text, attachmentIDs)
	if err != nil {
		return err
	}

	opts, directive := c.generationSettings(ownerID)
	entries := AssembleContext(history, directive, c.defaults.ContextBudget)

	src, err := c.gen.Stream(ctx, entries, opts)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	defer src.Close()

	return relay.Run(src, sink, func(fullText string) {
		assistant := &store.Turn{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           store.RoleAssistant,
			Content:        fullText,
			Meta: &store.TurnMeta{
				Model:       opts.Model,
				Temperature: opts.Temperature,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := c.store.InsertTurn(assistant); err != nil {
			slog.Warn("assistant turn lost after successful stream",
				"conversation_id", conversationID, "error", err)
			return
		}
		if err := c.refreshSummary(conv, text); err != nil {
			slog.Warn("conversation summary refresh failed",
				"conversation_id", conversationID, "error", err)
		}
	})
}

// Regenerate deletes the newest assistant turn and produces a replacement
// from the remaining history. Non-streaming only.
func (c *Coordinator) Regenerate(ctx context.Context, ownerID, conversationID string) (*store.Turn, error) {
	conv, err := c.ownedConversation(ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := c.store.ListTurns(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	var last *store.Turn
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == store.RoleAssistant {
			last = &history[i]
			break
		}
	}
	if last == nil {
		return nil, fmt.Errorf("%w: no assistant turn to regenerate", ErrNotFound)
	}

	if err := c.store.DeleteTurn(last.ID); err != nil {
		return nil, fmt.Errorf("deleting assistant turn: %w", err)
	}

	// Reload so the deleted turn cannot reappear in the context.
	history, err = c.store.ListTurns(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	opts, directive := c.generationSettings(ownerID)
	entries := AssembleContext(history, directive, c.defaults.ContextBudget)

	res, err := c.gen.Complete(ctx, entries, opts)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	assistant := &store.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        res.Content,
		Meta: &store.TurnMeta{
			Model:       res.Model,
			Temperature: opts.Temperature,
			Tokens:      res.Tokens,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.InsertTurn(assistant); err != nil {
		return nil, fmt.Errorf("persisting assistant turn: %w", err)
	}

	if err := c.recountTurns(conv); err != nil {
		return nil, err
	}
	return assistant, nil
}

// EditTurn rewrites a user turn's text. The first edit snapshots the
// pre-edit text into the turn metadata; later edits keep that first snapshot.
// Already-generated downstream replies are left untouched.
func (c *Coordinator) EditTurn(ctx context.Context, ownerID, turnID, newText string) (*store.Turn, error) {
	t, err := c.ownedTurn(ownerID, turnID)
	if err != nil {
		return nil, err
	}

	if t.Role != store.RoleUser {
		return nil, fmt.Errorf("%w: only user turns can be edited", ErrInvalidOperation)
	}

	if t.Meta == nil {
		t.Meta = &store.TurnMeta{}
	}
	if !t.Meta.IsEdited {
		t.Meta.OriginalContent = t.Content
	}
	t.Meta.IsEdited = true
	t.Content = newText

	if err := c.store.UpdateTurn(*t); err != nil {
		return nil, fmt.Errorf("updating turn: %w", err)
	}
	return t, nil
}

// DeleteTurn removes a turn and recounts the owning conversation.
func (c *Coordinator) DeleteTurn(ctx context.Context, ownerID, turnID string) error {
	t, err := c.ownedTurn(ownerID, turnID)
	if err != nil {
		return err
	}

	if err := c.store.DeleteTurn(t.ID); err != nil {
		return fmt.Errorf("deleting turn: %w", err)
	}

	conv, err := c.store.GetConversation(t.ConversationID)
	if err != nil || conv == nil {
		return err
	}
	return c.recountTurns(conv)
}

// --- helpers ---

func (c *Coordinator) ownedConversation(ownerID, conversationID string) (*store.Conversation, error) {
	conv, err := c.store.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil || conv.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: conversation", ErrNotFound)
	}
	return conv, nil
}

func (c *Coordinator) ownedTurn(ownerID, turnID string) (*store.Turn, error) {
	t, err := c.store.GetTurn(turnID)
	if err != nil {
		if errors.Is(err, store.ErrTurnNotFound) {
			return nil, fmt.Errorf("%w: turn", ErrNotFound)
		}
		return nil, fmt.Errorf("loading turn: %w", err)
	}

	conv, err := c.store.GetConversation(t.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil || conv.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return t, nil
}

// recordUserTurn persists the inbound text and returns it with the full
// history. When attachments are present their text is inlined into the
// in-memory copy of the new turn only.
func (c *Coordinator) recordUserTurn(conversationID, text string, attachmentIDs []string) (*store.Turn, []store.Turn, error) {
	attachments := c.resolveAttachments(attachmentIDs)

	refs := make([]store.AttachmentRef, 0, len(attachments))
	for _, a := range attachments {
		refs = append(refs, store.AttachmentRef{ID: a.ID, Name: a.Name, Kind: a.Kind})
	}

	userTurn := &store.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        text,
		CreatedAt:      time.Now().UTC(),
	}
	if len(refs) > 0 {
		userTurn.Attachments = refs
	}
	if err := c.store.InsertTurn(userTurn); err != nil {
		return nil, nil, fmt.Errorf("persisting user turn: %w", err)
	}

	history, err := c.store.ListTurns(conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading history: %w", err)
	}

	if len(attachments) > 0 && len(history) > 0 {
		newest := &history[len(history)-1]
		if newest.Role == store.RoleUser {
			newest.Content = InlineAttachments(newest.Content, attachments)
		}
	}
	return userTurn, history, nil
}

// resolveAttachments loads stored attachment text; unknown ids are skipped.
func (c *Coordinator) resolveAttachments(ids []string) []store.Attachment {
	var out []store.Attachment
	for _, id := range ids {
		a, err := c.store.GetAttachment(id)
		if err != nil {
			slog.Warn("attachment lookup failed", "attachment_id", id, "error", err)
			continue
		}
		if a == nil {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// generationSettings merges stored per-owner preferences over the defaults.
func (c *Coordinator) generationSettings(ownerID string) (provider.Options, string) {
	opts := provider.Options{
		Model:       c.defaults.Model,
		Temperature: c.defaults.Temperature,
		MaxTokens:   c.defaults.MaxTokens,
	}
	directive := c.defaults.SystemPrompt

	s, err := c.store.GetSettings(ownerID)
	if err != nil {
		slog.Warn("settings lookup failed", "owner_id", ownerID, "error", err)
		return opts, directive
	}
	if s == nil {
		return opts, directive
	}
	if s.Model != "" {
		opts.Model = s.Model
	}
	if s.Temperature != 0 {
		opts.Temperature = s.Temperature
	}
	if s.SystemPrompt != "" {
		directive = s.SystemPrompt
	}
	return opts, directive
}

// refreshSummary recomputes the denormalized conversation fields after a
// submission. The count read races with concurrent submissions on the same
// conversation; last writer wins on the cache, never on the turns themselves.
func (c *Coordinator) refreshSummary(conv *store.Conversation, inboundText string) error {
	conv.LastMessage = preview(inboundText)
	return c.recountTurns(conv)
}

func (c *Coordinator) recountTurns(conv *store.Conversation) error {
	count, err := c.store.CountTurns(conv.ID)
	if err != nil {
		return fmt.Errorf("counting turns: %w", err)
	}
	conv.MessageCount = count
	conv.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveConversation(*conv); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= lastMessagePreviewLen {
		return text
	}
	return string(runes[:lastMessagePreviewLen])
}
