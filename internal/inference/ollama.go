package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ModelInfo is one entry of the runtime's installed-model inventory.
type ModelInfo struct {
	Name    string       `json:"name"`
	Size    int64        `json:"size"`
	Details ModelDetails `json:"details"`
}

type ModelDetails struct {
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

type generateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type generateFragment struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Client talks to an Ollama-compatible runtime over HTTP.
type Client struct {
	baseURL   string
	http      *http.Client
	keepAlive string
}

func NewClient(baseURL, keepAlive string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		keepAlive: keepAlive,
	}
}

// Tags lists installed models. It doubles as the liveness probe.
func (c *Client) Tags(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return out.Models, nil
}

// Generate posts a prompt and concatenates the response. The body may be a
// single JSON object or newline-delimited fragments.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts Options) (string, error) {
	body := generateRequest{
		Model:     model,
		Prompt:    prompt,
		System:    opts.System,
		Stream:    false,
		KeepAlive: c.keepAlive,
	}
	params := map[string]any{}
	if opts.Temperature != nil {
		params["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		params["num_predict"] = opts.MaxTokens
	}
	if len(params) > 0 {
		body.Options = params
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return readFragments(resp.Body)
}

func readFragments(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	var sb strings.Builder
	fragments := 0
	for {
		var frag generateFragment
		err := dec.Decode(&frag)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed generate fragment %d: %w", fragments+1, err)
		}
		fragments++
		if frag.Error != "" {
			return "", fmt.Errorf("runtime error: %s", frag.Error)
		}
		sb.WriteString(frag.Response)
		if frag.Done {
			break
		}
	}
	if fragments == 0 {
		return "", errors.New("empty generate response")
	}
	return sb.String(), nil
}

// Pull downloads a model and blocks until the runtime reports completion.
func (c *Client) Pull(ctx context.Context, name string) error {
	b, err := json.Marshal(map[string]any{"name": name, "stream": false})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	var out struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode pull: %w", err)
	}
	if out.Error != "" {
		return fmt.Errorf("pull %s: %s", name, out.Error)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errors.New(resp.Status + ": " + strings.TrimSpace(string(b)))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
