package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func geminiServer(t *testing.T, status int, body string, gotPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		if gotPrompt != nil {
			raw, _ := io.ReadAll(r.Body)
			var req struct {
				Contents []struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"contents"`
			}
			if assert.NoError(t, json.Unmarshal(raw, &req)) && len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
				*gotPrompt = req.Contents[0].Parts[0].Text
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGemini(t *testing.T, baseURL string) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:          "test-key",
		Model:           "gemini-test",
		Temperature:     0.2,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 128,
		BaseURL:         baseURL,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestGeminiClient_Generate(t *testing.T) {
	var prompt string
	srv := geminiServer(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"result\": {}}"}]}}],
		"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2}
	}`, &prompt)

	text, err := newTestGemini(t, srv.URL).Generate(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, `{"result": {}}`, text)
	assert.Equal(t, "say hi", prompt)
}

func TestGeminiClient_APIError(t *testing.T) {
	srv := geminiServer(t, http.StatusBadRequest, `{"error": {"code": 400, "message": "bad key", "status": "INVALID_ARGUMENT"}}`, nil)

	_, err := newTestGemini(t, srv.URL).Generate(context.Background(), "hi")
	require.Error(t, err)
	var apiErr genai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)
}

func TestGeminiClient_EmptyResponse(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, `{"candidates": []}`, nil)

	_, err := newTestGemini(t, srv.URL).Generate(context.Background(), "hi")
	assert.ErrorContains(t, err, "empty response")
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{Model: "m"}, nil)
	assert.Error(t, err)
}
