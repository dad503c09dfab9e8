package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaProvider calls a local Ollama server through langchaingo
type OllamaProvider struct {
	llm     *ollama.LLM
	baseURL string
	model   string
	http    *http.Client
}

// NewOllamaProvider creates the provider. No key is needed.
func NewOllamaProvider(baseURL, model string, timeout time.Duration) (*OllamaProvider, error) {
	if timeout <= 0 {
		timeout = DefaultRetryConfig().Timeout
	}
	httpClient := &http.Client{Timeout: timeout}
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaProvider{
		llm:     llm,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    httpClient,
	}, nil
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" && req.Model != p.model {
		opts = append(opts, llms.WithModel(req.Model))
	}

	resp, err := p.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("ollama call failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// HealthCheck verifies the server is up and has the model pulled
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	models, err := ListOllamaModels(ctx, p.http, p.baseURL)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m == p.model || strings.HasPrefix(m, p.model+":") {
			return nil
		}
	}
	return fmt.Errorf("ollama model %q is not pulled (have: %s)", p.model, strings.Join(models, ", "))
}

// ListOllamaModels returns the model names a server at baseURL has pulled
func ListOllamaModels(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama is not reachable at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama at %s returned status %d", baseURL, resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode ollama model list: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
