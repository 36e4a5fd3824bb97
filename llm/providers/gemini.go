// Package providers holds the single shipped LLM provider implementation.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/levelforge/guideforge/llm"
)

func init() {
	llm.RegisterProvider(&GeminiProvider{})
}

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider implements llm.Provider for Google's Gemini REST API.
// It is the sole provider shipped per spec.md 6 ("one logical provider at
// a time... default gemini").
type GeminiProvider struct{}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) BuildURL(baseURL, model string) string {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	return baseURL + "/v1beta/models/" + model + ":generateContent"
}

func (p *GeminiProvider) SetHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", os.Getenv("GEMINI_API_KEY"))
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	ResponseMIME    string  `json:"responseMimeType,omitempty"`
}

func (p *GeminiProvider) BuildRequestBody(model, prompt string, temperature float64, maxOutputTokens int, responseMIMEType string) ([]byte, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxOutputTokens,
			ResponseMIME:    responseMIMEType,
		},
	}
	return json.Marshal(req)
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (p *GeminiProvider) ParseResponse(body []byte) (llm.ProviderResponse, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return llm.ProviderResponse{}, fmt.Errorf("parse gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return llm.ProviderResponse{}, fmt.Errorf("gemini response has no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}

	return llm.ProviderResponse{
		Text:         text,
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}
