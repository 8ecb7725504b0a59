package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/interviewpilot/internal/interview"
	"github.com/spigell/interviewpilot/internal/logger"
)

const (
	defaultModel         = "gemini-2.5-flash"
	defaultMaxQuotaDelay = 8 * time.Second
	providerName         = "gemini"
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return c.chats.Create(ctx, model, config, history)
}

// Generator sends one system instruction and one message per call to Gemini.
// It does not retry: failures are classified so that the caller's retry
// policy can tell transient errors from rejections.
type Generator struct {
	chats         chatCreator
	model         string
	maxQuotaDelay time.Duration
	logger        *zap.Logger
}

// Options configures NewGenerator.
type Options struct {
	APIKey string
	Model  string
	// MaxQuotaDelay is the longest advertised quota retry delay still worth
	// retrying. Longer delays are reported as rejections.
	MaxQuotaDelay time.Duration
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, opts Options, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	maxDelay := opts.MaxQuotaDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxQuotaDelay
	}

	return &Generator{
		chats:         genaiChats{chats: client.Chats},
		model:         model,
		maxQuotaDelay: maxDelay,
		logger:        logger.WithCommonFields(log, providerName, model),
	}, nil
}

// GenerateContent returns the concatenated text of the first response.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("message must not be empty: %w", interview.ErrUpstreamRejected)
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	chat, err := g.chats.Create(ctx, g.model, config, nil)
	if err != nil {
		return "", g.classify(fmt.Errorf("create chat: %w", err))
	}

	started := time.Now()
	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", g.classify(fmt.Errorf("send message: %w", err))
	}

	output := responseText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	g.logger.Debug("gemini response received",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("response_length", len(output)),
	)
	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func (g *Generator) Provider() string { return providerName }

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		if builder.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(builder.String())
}

// classify marks errors that retrying cannot fix with ErrUpstreamRejected.
// Everything else, including network failures and deadlines, stays transient.
func (g *Generator) classify(err error) error {
	apiErr, ok := asAPIError(err)
	if !ok {
		return err
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		delay, found := retryDelay(apiErr)
		if found && delay > g.maxQuotaDelay {
			g.logger.Warn("gemini quota delay exceeds retry budget",
				zap.Duration("retry_delay", delay),
				zap.Duration("max_delay", g.maxQuotaDelay),
			)
			return fmt.Errorf("%w: %w", interview.ErrUpstreamRejected, err)
		}
		return err
	case apiErr.Code == http.StatusRequestTimeout || apiErr.Code >= http.StatusInternalServerError:
		return err
	case apiErr.Code >= http.StatusBadRequest:
		return fmt.Errorf("%w: %w", interview.ErrUpstreamRejected, err)
	default:
		return err
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|secs|seconds?)?`)

// retryDelay reads the advertised delay from RetryInfo details or, failing
// that, from the message text.
func retryDelay(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d, true
		}
	}

	m := retryAfterPattern.FindStringSubmatch(apiErr.Message)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(m[2], "ms") {
		return time.Duration(value * float64(time.Millisecond)), true
	}
	return time.Duration(value * float64(time.Second)), true
}
