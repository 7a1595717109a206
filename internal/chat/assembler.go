package chat

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jmoura/parley/internal/provider"
	"github.com/jmoura/parley/internal/store"
)

const (
	// Rough length-based proxy for tokenizer cost. Exact counts are a
	// non-goal; the budget is approximate by contract.
	charsPerToken = 4

	// Units reserved for the generated response before packing history.
	responseAllowance = 500
)

// EstimateTokens approximates the token cost of text as ceil(len/4).
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// AssembleContext converts ordered history into the bounded entry list sent
// upstream. The directive, when present, becomes entry 0 with role system and
// its cost is deducted from the budget before any history is packed. History
// is packed newest-first: the walk stops at the first turn that would exceed
// the remaining budget, so the result is always a contiguous chronological
// suffix. Older turns are dropped whole, never truncated.
//
// Pure function: no I/O, no mutation of the input.
func AssembleContext(history []store.Turn, directive string, budget int) []provider.Entry {
	var entries []provider.Entry
	if directive != "" {
		entries = append(entries, provider.Entry{Role: store.RoleSystem, Content: directive})
	}

	remaining := budget - responseAllowance - EstimateTokens(directive)

	var included []provider.Entry
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content)
		if used+cost > remaining {
			break
		}
		included = append(included, provider.Entry{Role: history[i].Role, Content: history[i].Content})
		used += cost
	}
	slices.Reverse(included)

	return append(entries, included...)
}

// InlineAttachments appends a delimited block per attachment to content.
// Callers apply this to an in-memory copy of the newest user turn only; the
// durable turn is never mutated.
func InlineAttachments(content string, attachments []store.Attachment) string {
	if len(attachments) == 0 {
		return content
	}

	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\n[Attached Files Content]:\n")
	for _, a := range attachments {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", a.Name, a.Text)
	}
	return b.String()
}
