package convert

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbworks/docingest/internal/config"
	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/errs"
)

const engineConvertPath = "/convert"

// maxChunkLine bounds a single NDJSON record from the engine. Picture
// descriptions can run long, plain text chunks never get near this.
const maxChunkLine = 4 * 1024 * 1024

// EngineConverter talks to the external conversion engine. The engine
// answers with one JSON header line carrying the page count, then one
// NDJSON record per chunk; the records are consumed lazily off the body.
type EngineConverter struct {
	baseURL string
	client  *http.Client
}

func NewEngineConverter(cfg config.ConverterConfig) (*EngineConverter, error) {
	if cfg.EngineURL == "" {
		return nil, errs.New(errs.ErrConfiguration, "converter.engine_url is required")
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 300
	}
	return &EngineConverter{
		baseURL: strings.TrimRight(cfg.EngineURL, "/"),
		client:  &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

type engineHeader struct {
	PageCount *int `json:"page_count"`
}

type engineChunk struct {
	Text      string      `json:"text"`
	PageIndex int         `json:"page_index"`
	BBox      *[4]float64 `json:"bbox"`
}

func (e *EngineConverter) Convert(ctx context.Context, src Source, opts *model.ConvertOptions) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+engineConvertPath, bytes.NewReader(src.Data))
	if err != nil {
		return nil, errs.Wrap(errs.ErrConversion, err, "build request")
	}
	req.Header.Set("Content-Type", src.ContentType)
	req.Header.Set("X-File-Name", src.Name)
	if opts != nil {
		data, err := json.Marshal(opts)
		if err != nil {
			return nil, errs.Wrap(errs.ErrConversion, err, "encode pipeline options")
		}
		req.Header.Set("X-Pipeline-Options", string(data))
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConversion, err, "call conversion engine")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errs.Newf(errs.ErrConversion, "conversion engine returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxChunkLine)
	if !scanner.Scan() {
		resp.Body.Close()
		if err := scanner.Err(); err != nil {
			return nil, errs.Wrap(errs.ErrConversion, err, "read engine header")
		}
		return nil, errs.New(errs.ErrConversion, "conversion engine returned empty response")
	}
	var header engineHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		resp.Body.Close()
		return nil, errs.Wrap(errs.ErrConversion, err, "decode engine header")
	}
	return &Result{
		Stream:    &engineStream{body: resp.Body, scanner: scanner},
		PageCount: header.PageCount,
	}, nil
}

type engineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *engineStream) Next() (*RawChunk, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec engineChunk
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errs.Wrap(errs.ErrConversion, err, "decode chunk record")
		}
		return &RawChunk{Text: rec.Text, PageIndex: rec.PageIndex, BBox: rec.BBox}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrConversion, err, "read chunk stream")
	}
	return nil, io.EOF
}

func (s *engineStream) Close() error {
	return s.body.Close()
}
