package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"centroid/internal/config"
)

// remoteBackend calls an HTTP embedding endpoint, one request per input text,
// following the teacher's single-item-batch idiom to avoid overwhelming
// llama.cpp-style inference servers with concurrent batched requests.
type remoteBackend struct {
	name   string
	cfg    config.EmbeddingBackendConfig
	client *http.Client
}

// NewRemote constructs a Backend that POSTs to cfg.BaseURL+cfg.Path.
func NewRemote(name string, cfg config.EmbeddingBackendConfig, httpClient *http.Client) Backend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &remoteBackend{name: name, cfg: cfg, client: httpClient}
}

func (r *remoteBackend) Name() string   { return r.name }
func (r *remoteBackend) Dimension() int { return r.cfg.Dimensions }

func (r *remoteBackend) Ping(ctx context.Context) error {
	_, err := r.Embed(ctx, Query, []string{"ping"})
	return err
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (r *remoteBackend) Embed(ctx context.Context, kind Kind, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefix := r.cfg.PrefixContent
	if kind == Query {
		prefix = r.cfg.PrefixQuery
	}
	prefixed := texts
	if prefix != "" {
		prefixed = make([]string, len(texts))
		for i, t := range texts {
			prefixed[i] = prefix + t
		}
	}

	out := make([]Vector, 0, len(texts))
	for _, t := range prefixed {
		raw, err := r.call(ctx, []string{t})
		if err != nil {
			return nil, &EmbeddingFailed{Backend: r.name, Cause: err}
		}
		v, err := Normalize(r.name, raw[0])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *remoteBackend) call(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embedReq{Model: r.cfg.Model, Input: inputs})
	if err != nil {
		return nil, err
	}
	timeout := r.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := r.cfg.BaseURL + r.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	if r.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	} else if r.cfg.APIHeader != "" {
		req.Header.Set(r.cfg.APIHeader, r.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embeddings error: %s: %s", resp.Status, string(body))
	}

	var er embedResp
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("parse embedding response (input count %d): %w", len(inputs), err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}
