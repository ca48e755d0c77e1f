// Package llm is the boundary to the LLM hierarchy-suggestion service.
// It asks Google Gemini for candidate taxonomic hierarchies for a query
// the deterministic matchers could not resolve. Provider failures surface
// as explicit errors, never as panics across the boundary; the resolution
// engine degrades the affected row and carries on.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"taxonmatch/internal/logging"
)

// DefaultConfig returns sensible defaults for the Gemini client.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.5-flash",
		Timeout:         60 * time.Second,
		MaxOutputTokens: 8192,
		MaxRetries:      3,
	}
}

// Client calls the Gemini REST API. Safe for concurrent use; a shared
// mutex spaces requests out so a burst of per-row calls stays polite.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	maxRetries      int
	httpClient      *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a Gemini client with default configuration.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(DefaultConfig(apiKey))
}

// NewClientWithConfig creates a Gemini client with custom configuration.
func NewClientWithConfig(config Config) *Client {
	defaults := DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.Model) == "" {
		config.Model = defaults.Model
	}
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	return &Client{
		apiKey:          config.APIKey,
		baseURL:         config.BaseURL,
		model:           config.Model,
		maxOutputTokens: config.MaxOutputTokens,
		maxRetries:      config.MaxRetries,
		httpClient:      &http.Client{Timeout: config.Timeout},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// WithAPIKey returns a client using the given key for this session only,
// sharing the underlying HTTP client. An empty key returns the receiver.
func (c *Client) WithAPIKey(key string) *Client {
	key = strings.TrimSpace(key)
	if key == "" || key == c.apiKey {
		return c
	}
	return &Client{
		apiKey:          key,
		baseURL:         c.baseURL,
		model:           c.model,
		maxOutputTokens: c.maxOutputTokens,
		maxRetries:      c.maxRetries,
		httpClient:      c.httpClient,
	}
}

// Available reports whether the client has a key to call the provider with.
func (c *Client) Available() bool { return c.apiKey != "" }

const systemPrompt = "You are a taxonomic reference assistant. Map free-form species names " +
	"(common or scientific, any language) to standard taxonomic hierarchies. " +
	"Ground answers in accepted nomenclature only. Respond with JSON and nothing else."

// buildPrompt renders the disambiguation request for one unresolved query.
// The shape of the answer is pinned down field by field so the response
// parses without guessing.
func buildPrompt(query, location string) string {
	var sb strings.Builder
	sb.WriteString("Identify the following biological term and map it to its standard scientific (Latin) name.\n")
	if location != "" {
		fmt.Fprintf(&sb, "Context: the species was observed in %s.\n", location)
	}
	sb.WriteString("Provide multiple candidate identifications in order of likelihood, as different taxonomies may use different names.\n")
	sb.WriteString("For each candidate include the full taxonomic hierarchy.\n")
	sb.WriteString("Return a single JSON object with keys:\n")
	sb.WriteString("  - \"input_text\": the original input\n")
	sb.WriteString("  - \"candidates\": array of candidate objects, each with:\n")
	sb.WriteString("      - \"class\": taxonomic class\n")
	sb.WriteString("      - \"order\": taxonomic order\n")
	sb.WriteString("      - \"family\": taxonomic family\n")
	sb.WriteString("      - \"genus\": taxonomic genus\n")
	sb.WriteString("      - \"species\": species epithet (not the full binomial, just the species part)\n")
	sb.WriteString("      - \"confidence\": 0.0-1.0\n")
	sb.WriteString("  - \"suggested_common\": the most common English name\n")
	sb.WriteString("Leave any level you are uncertain about empty. If you cannot identify the term, set candidates to an empty array.\n")
	fmt.Fprintf(&sb, "Term: %s\n", query)
	return sb.String()
}

// Suggest asks the model for candidate hierarchies for one unresolved
// query. A context without a deadline gets the client timeout applied;
// timeouts and provider errors come back as errors for the caller to
// treat as "no candidates".
func (c *Client) Suggest(ctx context.Context, query, location string) (Suggestion, error) {
	log := logging.Get(logging.CategoryLLM)

	if c.apiKey == "" {
		return Suggestion{}, ErrNoAPIKey
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	log.Debug("Suggest: model=%s query=%q location=%q", c.model, query, location)

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: buildPrompt(query, location)}}},
		},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.2,
			MaxOutputTokens:  c.maxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	text, err := c.post(ctx, url, reqBody)
	if err != nil {
		log.Error("Suggest: %q failed after %v: %v", query, time.Since(start), err)
		return Suggestion{}, err
	}

	suggestion, err := parseSuggestion(text)
	if err != nil {
		log.Error("Suggest: %q unparseable response after %v: %v", query, time.Since(start), err)
		return Suggestion{}, fmt.Errorf("failed to parse suggestion: %w", err)
	}
	if suggestion.InputText == "" {
		suggestion.InputText = query
	}

	log.Info("Suggest: %q completed in %v candidates=%d", query, time.Since(start), len(suggestion.Candidates))
	return suggestion, nil
}

// post sends the request with retry on rate limits and returns the
// concatenated text parts of the first response candidate.
func (c *Client) post(ctx context.Context, url string, reqBody geminiRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		c.throttle()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			return "", &ModelNotFoundError{Model: c.model}
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var geminiResp geminiResponse
		if err := json.Unmarshal(body, &geminiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if geminiResp.Error != nil {
			if geminiResp.Error.Status == "NOT_FOUND" {
				return "", &ModelNotFoundError{Model: c.model}
			}
			return "", fmt.Errorf("API error: %s", geminiResp.Error.Message)
		}
		if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		var result strings.Builder
		for _, part := range geminiResp.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}
		return strings.TrimSpace(result.String()), nil
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// throttle spaces requests at least 100ms apart across goroutines.
func (c *Client) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

// parseSuggestion decodes the model's JSON answer, tolerating markdown
// code fences and a single-element array wrapper.
func parseSuggestion(text string) (Suggestion, error) {
	text = stripFences(text)

	var suggestion Suggestion
	if err := json.Unmarshal([]byte(text), &suggestion); err == nil {
		return suggestion, nil
	}

	var list []Suggestion
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		return Suggestion{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(list) == 0 {
		return Suggestion{}, nil
	}
	return list[0], nil
}

// stripFences removes a ```json ... ``` (or bare ```) wrapper if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
	} else {
		return text
	}
	if end := strings.Index(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}
