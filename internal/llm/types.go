package llm

import (
	"errors"
	"fmt"
	"time"

	"taxonmatch/internal/taxonomy"
)

// ErrNoAPIKey is returned when no API key is configured for the provider.
var ErrNoAPIKey = errors.New("API key not configured")

// ModelNotFoundError reports a misconfigured model name. It is distinct
// from the "no candidates" outcome: the user-visible message names the
// offending model so the misconfiguration can be fixed.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q is not available from the provider (run the models command to list valid names)", e.Model)
}

// IsModelNotFound reports whether err wraps a ModelNotFoundError.
func IsModelNotFound(err error) bool {
	var mnf *ModelNotFoundError
	return errors.As(err, &mnf)
}

// Candidate is one candidate identification returned by the model, a
// possibly partial hierarchy with the model's own confidence.
type Candidate struct {
	Class      string  `json:"class"`
	Order      string  `json:"order"`
	Family     string  `json:"family"`
	Genus      string  `json:"genus"`
	Species    string  `json:"species"` // epithet only, never the binomial
	Confidence float64 `json:"confidence,omitempty"`
}

// Hierarchy converts the candidate to a taxonomy lookup hierarchy.
func (c Candidate) Hierarchy() taxonomy.Hierarchy {
	return taxonomy.Hierarchy{
		Class:   c.Class,
		Order:   c.Order,
		Family:  c.Family,
		Genus:   c.Genus,
		Species: c.Species,
	}
}

// Suggestion is the disambiguator's answer for one query: zero or more
// candidate hierarchies in the model's confidence order, plus the model's
// best guess at the common English name.
type Suggestion struct {
	InputText       string      `json:"input_text"`
	Candidates      []Candidate `json:"candidates"`
	SuggestedCommon string      `json:"suggested_common"`
}

// ModelInfo describes one model advertised by the provider.
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Config holds configuration for the Gemini client.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxOutputTokens int
	MaxRetries      int
}

// geminiContent mirrors the Gemini REST API content object.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

// geminiGenerationConfig carries generation parameters. The REST API uses
// snake_case for the response MIME type field.
type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

type geminiModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}
