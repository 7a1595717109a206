package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", SiteURL: "http://localhost", SiteName: "parley"})
}

func TestCompleteSuccess(t *testing.T) {
	var gotReq chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "http://localhost", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "parley", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"model": "openai/gpt-3.5-turbo",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Hi!"}},
			},
			"usage": map[string]int{"total_tokens": 42},
		})
	})

	res, err := c.Complete(context.Background(), []Entry{{Role: "user", Content: "Hello"}}, Options{
		Model: "openai/gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 2000,
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi!", res.Content)
	assert.Equal(t, "openai/gpt-3.5-turbo", res.Model)
	assert.Equal(t, 42, res.Tokens)

	assert.False(t, gotReq.Stream)
	assert.Equal(t, 2000, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "Hello", gotReq.Messages[0].Content)
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	})

	_, err := c.Complete(context.Background(), nil, Options{})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusTooManyRequests, upstream.Status)
}

func TestCompleteMalformedPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	})

	_, err := c.Complete(context.Background(), nil, Options{})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
}

func TestCompleteEmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	})

	_, err := c.Complete(context.Background(), nil, Options{})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
}

func TestStreamYieldsFragmentsAndStopsAtSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: this is not json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	})

	src, err := c.Stream(context.Background(), []Entry{{Role: "user", Content: "Hello"}}, Options{})
	require.NoError(t, err)
	defer src.Close()

	var fragments []string
	for {
		frag, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		fragments = append(fragments, frag)
	}

	// Malformed and empty-delta fragments are skipped, the sentinel ends
	// the stream, and nothing after it is read.
	assert.Equal(t, []string{"Hel", "lo"}, fragments)
}

func TestStreamNonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := c.Stream(context.Background(), nil, Options{})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.Status)
}

func TestStreamEndWithoutSentinelIsEOF(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
	})

	src, err := c.Stream(context.Background(), nil, Options{})
	require.NoError(t, err)
	defer src.Close()

	frag, err := src.Recv()
	require.NoError(t, err)
	assert.Equal(t, "x", frag)

	_, err = src.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
