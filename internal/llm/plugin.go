package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
)

// Supported plugin providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

const (
	openAIBaseURL    = "https://api.openai.com/v1"
	anthropicBaseURL = "https://api.anthropic.com/v1"
	geminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"

	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 8000

	defaultPluginTimeout = 120 * time.Second
)

// apiKeyEnv maps providers to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGemini:    "GOOGLE_API_KEY",
}

// PluginSource calls a hosted model API over HTTP.
type PluginSource struct {
	provider    string
	model       string
	temperature float64
	apiKey      string
	baseURL     string
	httpClient  *http.Client
}

// PluginOption configures a PluginSource.
type PluginOption func(*PluginSource)

// WithAPIKey overrides the provider's environment variable.
func WithAPIKey(key string) PluginOption {
	return func(p *PluginSource) {
		if key != "" {
			p.apiKey = key
		}
	}
}

// WithBaseURL points the source at a compatible gateway.
func WithBaseURL(base string) PluginOption {
	return func(p *PluginSource) {
		if base != "" {
			p.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) PluginOption {
	return func(p *PluginSource) {
		p.temperature = t
	}
}

// WithHTTPTimeout sets the HTTP client timeout.
func WithHTTPTimeout(d time.Duration) PluginOption {
	return func(p *PluginSource) {
		p.httpClient.Timeout = d
	}
}

// NewPluginSource creates a source for provider/model. The API key comes
// from the provider's environment variable unless WithAPIKey is given.
func NewPluginSource(provider, model string, opts ...PluginOption) (*PluginSource, error) {
	provider = strings.ToLower(provider)
	envVar, ok := apiKeyEnv[provider]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", daacserrors.ErrUnknownSource, provider)
	}

	p := &PluginSource{
		provider:    provider,
		model:       model,
		temperature: 0.7,
		apiKey:      os.Getenv(envVar),
		httpClient:  &http.Client{Timeout: defaultPluginTimeout},
	}
	switch provider {
	case ProviderOpenAI:
		p.baseURL = openAIBaseURL
	case ProviderAnthropic:
		p.baseURL = anthropicBaseURL
	case ProviderGemini:
		p.baseURL = geminiBaseURL
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: set %s or plugin.api_key", daacserrors.ErrMissingAPIKey, envVar)
	}
	return p, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends prompt as a single user message.
func (p *PluginSource) Invoke(ctx context.Context, prompt string, _ ...InvokeOption) (string, error) {
	var (
		endpoint string
		payload  any
		headers  = map[string]string{"Content-Type": "application/json"}
	)

	switch p.provider {
	case ProviderOpenAI:
		endpoint = p.baseURL + "/chat/completions"
		headers["Authorization"] = "Bearer " + p.apiKey
		payload = openAIRequest{
			Model:       p.model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: p.temperature,
		}
	case ProviderAnthropic:
		endpoint = p.baseURL + "/messages"
		headers["x-api-key"] = p.apiKey
		headers["anthropic-version"] = anthropicVersion
		payload = anthropicRequest{
			Model:       p.model,
			MaxTokens:   anthropicMaxTokens,
			Temperature: p.temperature,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
		}
	case ProviderGemini:
		endpoint = fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(p.model), url.QueryEscape(p.apiKey))
		req := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}
		req.GenerationConfig.Temperature = p.temperature
		payload = req
	}

	body, err := p.post(ctx, endpoint, headers, payload)
	if err != nil {
		return "", err
	}
	return p.decode(body)
}

func (p *PluginSource) post(ctx context.Context, endpoint string, headers map[string]string, payload any) ([]byte, error) {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, daacserrors.NewExecutorError("send request", err).WithClient(p.Describe())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, daacserrors.NewExecutorError(
			fmt.Sprintf("API error (status %d)", resp.StatusCode), daacserrors.ErrExecutorFailed,
		).WithClient(p.Describe()).WithExitCode(resp.StatusCode).WithOutput(string(body))
	}
	return body, nil
}

func (p *PluginSource) decode(body []byte) (string, error) {
	var text, apiErr string

	switch p.provider {
	case ProviderOpenAI:
		var r openAIResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}
		if r.Error != nil {
			apiErr = r.Error.Message
		} else if len(r.Choices) > 0 {
			text = r.Choices[0].Message.Content
		}
	case ProviderAnthropic:
		var r anthropicResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}
		if r.Error != nil {
			apiErr = r.Error.Message
		} else if len(r.Content) > 0 {
			text = r.Content[0].Text
		}
	case ProviderGemini:
		var r geminiResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}
		if r.Error != nil {
			apiErr = r.Error.Message
		} else if len(r.Candidates) > 0 && len(r.Candidates[0].Content.Parts) > 0 {
			text = r.Candidates[0].Content.Parts[0].Text
		}
	}

	if apiErr != "" {
		return "", fmt.Errorf("API error: %s", apiErr)
	}
	if strings.TrimSpace(text) == "" {
		return "", daacserrors.ErrEmptyResponse
	}
	return text, nil
}

// InvokeStructured asks for JSON through Invoke.
func (p *PluginSource) InvokeStructured(ctx context.Context, prompt string, opts ...InvokeOption) (map[string]any, error) {
	return invokeStructured(ctx, p, prompt, opts)
}

// Describe returns "plugin:<provider>/<model>".
func (p *PluginSource) Describe() string {
	return "plugin:" + p.provider + "/" + p.model
}
