package llm

import (
	"net/http"
	"sync"
)

// Provider is the seam between the gateway's retry/validation pipeline and
// one LLM vendor's wire format. Only one provider is active per deployment
// (spec.md 6: "one logical provider at a time"), but the registry allows
// additional providers to register without touching gateway.go.
type Provider interface {
	// Name returns the provider identifier, matching LLM_PROVIDER.
	Name() string

	// BuildURL constructs the full completion endpoint from a base URL and
	// model name.
	BuildURL(baseURL, model string) string

	// SetHeaders adds provider-specific auth/version headers.
	SetHeaders(req *http.Request)

	// BuildRequestBody renders the provider's JSON request body.
	BuildRequestBody(model, prompt string, temperature float64, maxOutputTokens int, responseMIMEType string) ([]byte, error)

	// ParseResponse extracts text and token usage from the provider's
	// JSON response body.
	ParseResponse(body []byte) (ProviderResponse, error)
}

// ProviderResponse is a provider's raw completion, before JSON-schema
// validation by the gateway.
type ProviderResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry. Providers call this
// from an init() func, following the teacher's registration pattern.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a registered provider by name, or nil if unknown.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}
