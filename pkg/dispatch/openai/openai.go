package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"larkclaw/pkg/config"
	dispatchtypes "larkclaw/pkg/dispatch/types"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const defaultModel = "gpt-4o-mini"

// Dispatcher generates replies with the OpenAI Responses API and delivers
// them to the collector as a single final fragment.
type Dispatcher struct {
	client         osdk.Client
	model          string
	instructions   string
	requestTimeout time.Duration
}

func New(cfg *config.Config) (*Dispatcher, error) {
	dispatchCfg := cfg.Dispatch.OpenAI
	apiKey := resolveAPIKey(dispatchCfg)
	if apiKey == "" {
		return nil, errors.New("dispatch.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(dispatchCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	requestTimeout := time.Duration(dispatchCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	model := strings.TrimSpace(dispatchCfg.Model)
	if model == "" {
		model = defaultModel
	}

	return &Dispatcher{
		client:         osdk.NewClient(opts...),
		model:          model,
		instructions:   strings.TrimSpace(dispatchCfg.Instructions),
		requestTimeout: requestTimeout,
	}, nil
}

// Health verifies backend connectivity with a models listing call.
func (d *Dispatcher) Health(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	log := dispatcherLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("Dispatch request started")

	if _, err := d.client.Models.List(ctx); err != nil {
		log.Debug("Dispatch request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("Dispatch request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

// Dispatch sends the inbound text as one prompt and collects the response as
// a final fragment. Session correlation uses the prompt alone; conversation
// state is the provider's concern, not this connector's.
func (d *Dispatcher) Dispatch(ctx context.Context, dctx dispatchtypes.Context, collector *dispatchtypes.Collector) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	log := dispatcherLogger().With("operation", "dispatch", "session_key", dctx.SessionKey)
	startedAt := time.Now()

	prompt := strings.TrimSpace(dctx.Body)
	if prompt == "" {
		return errors.New("dispatch text is required")
	}

	params := responses.ResponseNewParams{
		Model: d.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
	}
	if d.instructions != "" {
		params.Instructions = osdk.String(d.instructions)
	}

	log.Debug("Dispatch request started", "model", d.model, "prompt_length", len(prompt))

	response, err := d.client.Responses.New(ctx, params)
	if err != nil {
		log.Debug("Dispatch request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("dispatch failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		log.Debug("Dispatch request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return errors.New("dispatch succeeded but returned no text")
	}

	collector.Deliver(dispatchtypes.Final(text))
	log.Debug("Dispatch request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return nil
}

func dispatcherLogger() *slog.Logger {
	return slog.Default().With("component", "dispatch.openai")
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIDispatchConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
