package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-2.5-flash",
		Timeout: 5 * time.Second,
	})
}

func generateBody(text string) string {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
				"role":  "model",
			}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestSuggestParsesCandidates(t *testing.T) {
	answer := `{"input_text":"american three-toed woodpecker","candidates":[` +
		`{"class":"aves","order":"piciformes","family":"picidae","genus":"picoides","species":"dorsalis","confidence":0.9},` +
		`{"class":"aves","order":"piciformes","family":"picidae","genus":"picoides","species":"","confidence":0.6}],` +
		`"suggested_common":"American three-toed woodpecker"}`

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.URL.Path, "models/gemini-2.5-flash:generateContent")

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "american three-toed woodpecker")
		assert.Contains(t, req.Contents[0].Parts[0].Text, "Alberta, Canada")
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)

		w.Write([]byte(generateBody(answer)))
	})

	suggestion, err := client.Suggest(context.Background(), "american three-toed woodpecker", "Alberta, Canada")
	require.NoError(t, err)
	assert.Equal(t, "american three-toed woodpecker", suggestion.InputText)
	require.Len(t, suggestion.Candidates, 2)
	assert.Equal(t, "picoides", suggestion.Candidates[0].Genus)
	assert.Equal(t, "dorsalis", suggestion.Candidates[0].Species)
	assert.Equal(t, "American three-toed woodpecker", suggestion.SuggestedCommon)
}

func TestSuggestStripsMarkdownFences(t *testing.T) {
	answer := "```json\n{\"candidates\":[],\"suggested_common\":\"\"}\n```"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(generateBody(answer)))
	})

	suggestion, err := client.Suggest(context.Background(), "mystery beast", "")
	require.NoError(t, err)
	assert.Empty(t, suggestion.Candidates)
	// Query is echoed back when the model omits input_text.
	assert.Equal(t, "mystery beast", suggestion.InputText)
}

func TestSuggestModelNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"model not found","status":"NOT_FOUND"}}`))
	})

	_, err := client.Suggest(context.Background(), "weasel", "")
	require.Error(t, err)
	assert.True(t, IsModelNotFound(err))
	assert.Contains(t, err.Error(), "gemini-2.5-flash")
}

func TestSuggestRetriesRateLimit(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(generateBody(`{"candidates":[],"suggested_common":""}`)))
	})

	_, err := client.Suggest(context.Background(), "weasel", "")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSuggestWithoutKey(t *testing.T) {
	client := NewClient("")
	_, err := client.Suggest(context.Background(), "weasel", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
	assert.False(t, client.Available())
}

func TestWithAPIKeyOverride(t *testing.T) {
	base := NewClient("base-key")
	override := base.WithAPIKey("session-key")
	assert.NotSame(t, base, override)
	assert.Equal(t, base.Model(), override.Model())
	// Empty override keeps the configured client.
	assert.Same(t, base, base.WithAPIKey(""))
}

func TestParseSuggestionArrayWrapper(t *testing.T) {
	text := `[{"input_text":"deer","candidates":[{"genus":"odocoileus","species":"virginianus"}],"suggested_common":"white-tailed deer"}]`
	suggestion, err := parseSuggestion(text)
	require.NoError(t, err)
	assert.Equal(t, "deer", suggestion.InputText)
	require.Len(t, suggestion.Candidates, 1)
}

func TestParseSuggestionInvalid(t *testing.T) {
	_, err := parseSuggestion("the model rambled instead of returning JSON")
	require.Error(t, err)
}

func TestListModelsFiltersGenerationCapable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"models":[
			{"name":"models/gemini-2.5-flash","displayName":"Gemini 2.5 Flash","supportedGenerationMethods":["generateContent","countTokens"]},
			{"name":"models/gemini-embedding-001","displayName":"Embedding","supportedGenerationMethods":["embedContent"]}
		]}`))
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gemini-2.5-flash", models[0].Name)
}
