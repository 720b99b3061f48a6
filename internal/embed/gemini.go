package embed

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/kbworks/docingest/internal/pkg/errs"
)

type geminiConfig struct {
	APIKey   string `json:"api_key"`
	TaskType string `json:"task_type"`
}

type geminiEmbedder struct {
	apiKey   string
	model    string
	taskType string
}

func init() {
	Register("gemini", createGeminiEmbedder)
}

func createGeminiEmbedder(model string, args interface{}) (Embedder, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errs.New(errs.ErrConfiguration, "gemini api_key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &geminiEmbedder{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    model,
		taskType: cfg.TaskType,
	}, nil
}

func (e *geminiEmbedder) ModelName() string {
	return e.model
}

func (e *geminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch(texts); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, err, "create gemini client")
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	var config *genai.EmbedContentConfig
	if e.taskType != "" {
		config = &genai.EmbedContentConfig{TaskType: e.taskType}
	}
	resp, err := client.Models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, err, "gemini embed content")
	}
	if len(resp.Embeddings) == 0 {
		return nil, errs.New(errs.ErrEmbedding, "no embedding values returned")
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, errs.Newf(errs.ErrEmbedding, "got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}
