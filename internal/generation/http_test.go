package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeon/internal/config"
	"aeon/internal/types"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *HTTPGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewHTTPGenerator(config.GenerationConfig{
		Provider: "http",
		BaseURL:  srv.URL,
		Model:    "test-model",
		Timeout:  "5s",
	})
	require.NoError(t, err)
	return g
}

func TestHTTPGenerateSuccess(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"<header>hello</header>"}}]}`)
	})

	out, err := g.Generate(context.Background(), types.RoleArchitect, "build a header", types.TierPrimary)
	require.NoError(t, err)
	assert.Contains(t, out, "header")
}

func TestHTTPGenerateEmptyChoicesIsInvalidOutput(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := g.Generate(context.Background(), types.RoleStylist, "styles", types.TierStandby)
	assert.True(t, errors.Is(err, ErrInvalidOutput))
}

func TestHTTPGenerateMalformedJSONIsInvalidOutput(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{{{not json`)
	})

	_, err := g.Generate(context.Background(), types.RoleStylist, "styles", types.TierPrimary)
	assert.True(t, errors.Is(err, ErrInvalidOutput))
}

func TestHTTPGenerateRateLimitExhaustsRetries(t *testing.T) {
	var calls int
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := g.Generate(context.Background(), types.RoleCopywriter, "copy", types.TierPrimary)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, 3, calls)
}

func TestHTTPGenerateServerErrorIsGenerationError(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := g.Generate(context.Background(), types.RoleAnimator, "motion", types.TierFallbackA)
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.False(t, errors.Is(err, ErrRateLimited))
}

func TestHTTPGeneratorRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPGenerator(config.GenerationConfig{Provider: "http"})
	assert.Error(t, err)
}

func TestTierSettingsDegrade(t *testing.T) {
	prevTokens := int32(1 << 30)
	prevTemp := float32(2.0)
	for _, tier := range types.AllTiers() {
		temp, tokens := tierSettings(tier)
		assert.LessOrEqual(t, tokens, prevTokens, "tokens must not grow down the ladder")
		assert.LessOrEqual(t, temp, prevTemp, "temperature must not grow down the ladder")
		prevTokens, prevTemp = tokens, temp
	}
}

func TestClassifyProviderError(t *testing.T) {
	assert.True(t, errors.Is(classifyProviderError(context.DeadlineExceeded), ErrTimeout))
	assert.True(t, errors.Is(classifyProviderError(errors.New("HTTP 429: quota exceeded")), ErrRateLimited))
	assert.True(t, errors.Is(classifyProviderError(errors.New("client timeout exceeded")), ErrTimeout))
	assert.True(t, errors.Is(classifyProviderError(errors.New("boom")), ErrGeneration))
}

func TestNewSelectsProvider(t *testing.T) {
	_, err := New(config.GenerationConfig{Provider: "nope"})
	assert.Error(t, err)

	_, err = New(config.GenerationConfig{Provider: "gemini"})
	assert.Error(t, err) // No API key configured.
}
