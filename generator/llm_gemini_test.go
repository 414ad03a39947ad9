package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

func newGeminiServer(t *testing.T, status int, reply any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		assert.Equal(t, "g-test", r.Header.Get("x-goog-api-key"))

		var body struct {
			Contents          []geminiContent `json:"contents"`
			SystemInstruction geminiContent   `json:"systemInstruction"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Contents, 1) && assert.Len(t, body.Contents[0].Parts, 1) {
			assert.Equal(t, "user", body.Contents[0].Role)
			assert.Equal(t, "usr", body.Contents[0].Parts[0].Text)
		}
		if assert.Len(t, body.SystemInstruction.Parts, 1) {
			assert.Equal(t, "sys", body.SystemInstruction.Parts[0].Text)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestGemini(t *testing.T, baseURL string) *GeminiLLM {
	t.Helper()
	llm, err := NewGeminiLLMFromConfig(context.Background(), &LLMSettings{
		Provider: "gemini",
		Model:    "gemini-test",
		APIKey:   "g-test",
		BaseURL:  baseURL,
	})
	require.NoError(t, err)
	return llm
}

func TestGeminiLLM_CompleteJoinsParts(t *testing.T) {
	srv, calls := newGeminiServer(t, http.StatusOK, map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": "import React from 'react';\n"}, {"text": "const GameZone = () => null;"}},
			},
			"finishReason": "STOP",
		}},
	})

	out, err := newTestGemini(t, srv.URL).Complete(context.Background(), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "import React from 'react';\nconst GameZone = () => null;", out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiLLM_EmptyCandidates(t *testing.T) {
	srv, calls := newGeminiServer(t, http.StatusOK, map[string]any{"candidates": []any{}})

	_, err := newTestGemini(t, srv.URL).Complete(context.Background(), Prompt{System: "sys", User: "usr"})
	assert.ErrorContains(t, err, "empty candidates")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiLLM_NoRetryOnServerError(t *testing.T) {
	srv, calls := newGeminiServer(t, http.StatusServiceUnavailable, map[string]any{
		"error": map[string]any{"code": 503, "message": "overloaded", "status": "UNAVAILABLE"},
	})

	_, err := newTestGemini(t, srv.URL).Complete(context.Background(), Prompt{System: "sys", User: "usr"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewGeminiLLMFromConfig_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := NewGeminiLLMFromConfig(ctx, nil)
	assert.Error(t, err)
	_, err = NewGeminiLLMFromConfig(ctx, &LLMSettings{Model: "gemini-test"})
	assert.ErrorContains(t, err, "api key")
	_, err = NewGeminiLLMFromConfig(ctx, &LLMSettings{APIKey: "g-test"})
	assert.ErrorContains(t, err, "model")
}
