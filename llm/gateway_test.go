package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Confidence float64 `json:"confidence"`
}

func (d *testDoc) Validate() error { return nil }

// fakeProvider lets tests script a sequence of raw response bodies,
// simulating a malformed-then-repaired provider reply (spec.md scenario 3).
type fakeProvider struct {
	bodies []string
	calls  int32
}

func (p *fakeProvider) Name() string                 { return "fake" }
func (p *fakeProvider) BuildURL(base, model string) string { return "http://fake/v1" }
func (p *fakeProvider) SetHeaders(req *http.Request) {}
func (p *fakeProvider) BuildRequestBody(model, prompt string, temperature float64, maxTokens int, mime string) ([]byte, error) {
	return []byte(`{}`), nil
}
func (p *fakeProvider) ParseResponse(body []byte) (ProviderResponse, error) {
	idx := int(atomic.AddInt32(&p.calls, 1)) - 1
	return ProviderResponse{Text: p.bodies[idx]}, nil
}

func TestGenerateStructured_RepairRoundTrip_OneTelemetryRecord(t *testing.T) {
	fp := &fakeProvider{bodies: []string{"}{", `{"confidence": 0.8}`}}
	RegisterProvider(fp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var records []CallRecord
	cfg := DefaultConfig()
	cfg.Provider = "fake"
	cfg.BaseURL = srv.URL

	gw := NewGateway(cfg, WithTelemetrySink(func(r CallRecord) { records = append(records, r) }))

	var out testDoc
	err := gw.GenerateStructured(context.Background(), "parse_matrix", "parse_matrix", "v1", map[string]string{
		"role_hint":     "Engineer",
		"document_text": "...",
	}, &out)

	require.NoError(t, err)
	assert.EqualValues(t, 2, fp.calls)
	require.Len(t, records, 1)
	assert.True(t, records[0].OK)
	assert.Equal(t, 0, records[0].Retries)
}

func TestGenerateStructured_UnknownPromptIsFatal(t *testing.T) {
	gw := NewGateway(DefaultConfig())
	var out testDoc
	err := gw.GenerateStructured(context.Background(), "x", "nonexistent", "v1", nil, &out)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestCalculateBackoff_CapsAtTwoSeconds(t *testing.T) {
	assert.Less(t, calculateBackoff(0).Seconds(), 0.3)
	assert.LessOrEqual(t, calculateBackoff(10).Seconds(), 2.0)
}
