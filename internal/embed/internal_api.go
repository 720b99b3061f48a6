package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbworks/docingest/internal/pkg/errs"
)

// The knowledge-base API exposes a batch embedding endpoint for its worker
// processes; requests authenticate with a shared secret header.
const internalBatchPath = "/api/internal/embeddings/batch"

type internalConfig struct {
	APIURL         string `json:"api_url"`
	Secret         string `json:"secret"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type internalEmbedder struct {
	apiURL string
	secret string
	model  string
	client *http.Client
}

type internalEmbedRequest struct {
	Texts []string `json:"texts"`
}

type internalEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func init() {
	Register("internal", createInternalEmbedder)
}

func createInternalEmbedder(model string, args interface{}) (Embedder, error) {
	cfg := &internalConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" || cfg.Secret == "" {
		return nil, errs.New(errs.ErrConfiguration, "internal embedder api_url and secret are required")
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	return &internalEmbedder{
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		secret: cfg.Secret,
		model:  model,
		client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

func (e *internalEmbedder) ModelName() string {
	if e.model != "" {
		return e.model
	}
	return "internal"
}

func (e *internalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch(texts); err != nil {
		return nil, err
	}
	data, err := json.Marshal(internalEmbedRequest{Texts: texts})
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL+internalBatchPath, bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-internal-secret", e.secret)
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, err, "call embeddings api")
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, errs.Newf(errs.ErrEmbedding, "embeddings api returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out internalEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, err, "decode response")
	}
	if len(out.Embeddings) == 0 {
		return nil, errs.New(errs.ErrEmbedding, "no embeddings returned")
	}
	if len(out.Embeddings) != len(texts) {
		return nil, errs.Newf(errs.ErrEmbedding, "got %d embeddings for %d texts", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}
