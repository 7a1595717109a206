package chat

import (
	"strings"
	"testing"

	"github.com/jmoura/parley/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnsOf(contents ...string) []store.Turn {
	turns := make([]store.Turn, len(contents))
	for i, c := range contents {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		turns[i] = store.Turn{Role: role, Content: c}
	}
	return turns
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
}

func TestAssembleIncludesEverythingWithinBudget(t *testing.T) {
	history := turnsOf("hello", "hi there", "how are you?")

	entries := AssembleContext(history, "", 10000)

	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, history[i].Role, e.Role)
		assert.Equal(t, history[i].Content, e.Content)
	}
}

func TestAssembleDirectiveIsFirstSystemEntry(t *testing.T) {
	history := turnsOf("hello")

	entries := AssembleContext(history, "be terse", 10000)

	require.Len(t, entries, 2)
	assert.Equal(t, store.RoleSystem, entries[0].Role)
	assert.Equal(t, "be terse", entries[0].Content)
	assert.Equal(t, "hello", entries[1].Content)
}

func TestAssembleDropsOldestFirst(t *testing.T) {
	// Each turn costs 50 units (200 chars). Budget 600 minus the 500
	// response allowance leaves room for exactly two turns.
	contents := make([]string, 100)
	for i := range contents {
		contents[i] = strings.Repeat("x", 200)
	}
	history := turnsOf(contents...)

	entries := AssembleContext(history, "", 600)

	require.Len(t, entries, 2)
	// The survivors are the two newest turns, still in chronological order.
	assert.Equal(t, history[98].Role, entries[0].Role)
	assert.Equal(t, history[99].Role, entries[1].Role)
}

func TestAssembleOutputIsContiguousSuffix(t *testing.T) {
	history := turnsOf(
		strings.Repeat("a", 400),
		strings.Repeat("b", 400),
		strings.Repeat("c", 400),
		strings.Repeat("d", 400),
	)

	// 500 allowance + 200 of room: two 100-unit turns fit.
	entries := AssembleContext(history, "", 700)

	require.Len(t, entries, 2)
	assert.Equal(t, history[2].Content, entries[0].Content)
	assert.Equal(t, history[3].Content, entries[1].Content)
}

func TestAssembleDirectiveCostReducesHistoryRoom(t *testing.T) {
	history := turnsOf(strings.Repeat("a", 200), strings.Repeat("b", 200))

	// Without a directive both turns fit (600 - 500 = 100 units).
	require.Len(t, AssembleContext(history, "", 600), 2)

	// A 200-char directive costs 50 units, leaving room for one turn.
	directive := strings.Repeat("s", 200)
	entries := AssembleContext(history, directive, 600)
	require.Len(t, entries, 2)
	assert.Equal(t, store.RoleSystem, entries[0].Role)
	assert.Equal(t, history[1].Content, entries[1].Content)
}

func TestAssembleNeverTruncatesATurn(t *testing.T) {
	history := turnsOf(strings.Repeat("a", 4000), strings.Repeat("b", 40))

	entries := AssembleContext(history, "", 600)

	// The big turn exceeds the remainder and must be dropped whole.
	require.Len(t, entries, 1)
	assert.Equal(t, history[1].Content, entries[0].Content)
}

func TestAssembleExhaustedBudgetYieldsNoHistory(t *testing.T) {
	history := turnsOf("hello")

	entries := AssembleContext(history, "", 500)
	assert.Empty(t, entries)
}

func TestAssembleDoesNotMutateInput(t *testing.T) {
	history := turnsOf("hello", "hi")
	AssembleContext(history, "sys", 10000)

	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "hi", history[1].Content)
}

func TestInlineAttachments(t *testing.T) {
	got := InlineAttachments("summarize this", []store.Attachment{
		{Name: "notes.txt", Text: "first file"},
		{Name: "report.pdf", Text: "second file"},
	})

	assert.True(t, strings.HasPrefix(got, "summarize this"))
	assert.Contains(t, got, "[Attached Files Content]:")
	assert.Contains(t, got, "--- notes.txt ---\nfirst file\n")
	assert.Contains(t, got, "--- report.pdf ---\nsecond file\n")
}

func TestInlineAttachmentsNoop(t *testing.T) {
	assert.Equal(t, "plain", InlineAttachments("plain", nil))
}
