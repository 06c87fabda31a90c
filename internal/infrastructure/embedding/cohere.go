package embedding

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"github.com/paramed/reconciler/internal/domain"
)

const (
	defaultCohereModel = "embed-multilingual-v3.0"
	cohereMaxTexts     = 96
)

// CohereEmbedder implements domain.Embedder using the Cohere Embed API (v2)
type CohereEmbedder struct {
	client *cohereclient.Client
	model  string
}

// NewCohereEmbedder creates a Cohere provider. Product names are mostly French,
// so the multilingual model is the default.
func NewCohereEmbedder(apiKey, model string, timeout time.Duration) (*CohereEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("cohere api key is required")
	}
	if model == "" || !strings.HasPrefix(model, "embed-") {
		model = defaultCohereModel
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	// Force HTTP/1.1; the embed endpoint drops long HTTP/2 streams
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &CohereEmbedder{client: client, model: model}, nil
}

// ModelName returns the Cohere model id
func (c *CohereEmbedder) ModelName() string { return c.model }

// Embed embeds texts in chunks the API accepts, preserving order
func (c *CohereEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += cohereMaxTexts {
		end := min(start+cohereMaxTexts, len(texts))
		vectors, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *CohereEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.client.V2.Embed(
		ctx,
		&cohere.V2EmbedRequest{
			Texts:          texts,
			Model:          c.model,
			InputType:      cohere.EmbedInputTypeSearchDocument,
			EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: cohere embed: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, fmt.Errorf("%w: cohere embed returned no float embeddings", domain.ErrEmbeddingUnavailable)
	}
	if len(resp.Embeddings.Float) != len(texts) {
		return nil, fmt.Errorf("%w: embedding count mismatch", domain.ErrEmbeddingUnavailable)
	}
	return resp.Embeddings.Float, nil
}
