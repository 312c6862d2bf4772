package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/snapspend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	"github.com/angelmondragon/snapspend-backend/pkg/metrics"
	"github.com/angelmondragon/snapspend-backend/pkg/openai"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

const (
	defaultMaxImageBytes int64 = 10 << 20
	defaultMaxTokens           = 2048
)

type chatClient interface {
	ChatCompletion(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error)
}

type outcomeObserver interface {
	Observe(outcome string, duration time.Duration)
}

// Params configures an Extractor.
type Params struct {
	Client          chatClient
	Metrics         outcomeObserver
	Logger          *logger.Logger
	DefaultCurrency string
	MaxImageBytes   int64
}

// Extractor turns receipt photos into receipt drafts using a vision model.
type Extractor struct {
	client        chatClient
	metrics       outcomeObserver
	logg          *logger.Logger
	currency      enums.Currency
	maxImageBytes int64
	now           func() time.Time
}

// New validates params and returns an Extractor.
func New(params Params) (*Extractor, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("chat client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := enums.CurrencyUSD
	if strings.TrimSpace(params.DefaultCurrency) != "" {
		parsed, err := enums.ParseKnownCurrency(params.DefaultCurrency)
		if err != nil {
			return nil, fmt.Errorf("default currency: %w", err)
		}
		currency = parsed
	}
	maxBytes := params.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	observer := params.Metrics
	if observer == nil {
		observer = (*metrics.ExtractionMetrics)(nil)
	}
	return &Extractor{
		client:        params.Client,
		metrics:       observer,
		logg:          params.Logger,
		currency:      currency,
		maxImageBytes: maxBytes,
		now:           time.Now,
	}, nil
}

// Extract sends the image to the model and parses its reply into a draft.
// The draft has a fresh ID, no owner and no image references.
func (e *Extractor) Extract(ctx context.Context, image []byte, mimeType string) (*receipt.Receipt, error) {
	if len(image) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image is required")
	}
	if int64(len(image)) > e.maxImageBytes {
		return nil, pkgerrors.New(pkgerrors.CodeTooLarge, "image exceeds maximum size")
	}
	mime, err := enums.ParseImageMimeType(mimeType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported image type")
	}

	start := time.Now()
	defaults := parseDefaults{currency: e.currency, now: e.now().UTC()}

	messages := []openai.Message{
		openai.TextMessage(openai.RoleSystem, SystemPrompt()),
		{
			Role: openai.RoleUser,
			Content: []openai.ContentPart{
				{Type: "text", Text: userPrompt},
				openai.ImagePart(mime.String(), image),
			},
		},
	}

	resp, err := e.complete(ctx, messages)
	if err != nil {
		e.metrics.Observe(metrics.OutcomeUpstreamFail, time.Since(start))
		return nil, err
	}
	draft, parseErr := parseReply(resp.Content, defaults)
	if parseErr == nil {
		e.metrics.Observe(metrics.OutcomeSuccess, time.Since(start))
		return &draft, nil
	}

	ctx = e.logg.WithField(ctx, "reply_length", len(resp.Content))
	e.logg.Warn(ctx, "extraction.parse_failed_retrying")

	messages = append(messages,
		openai.TextMessage(openai.RoleAssistant, resp.Content),
		openai.TextMessage(openai.RoleUser, strictRetryPrompt),
	)
	resp, err = e.complete(ctx, messages)
	if err != nil {
		e.metrics.Observe(metrics.OutcomeUpstreamFail, time.Since(start))
		return nil, err
	}
	draft, parseErr = parseReply(resp.Content, defaults)
	if parseErr != nil {
		e.metrics.Observe(metrics.OutcomeParseFailure, time.Since(start))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, parseErr, "could not read receipt from image")
	}
	e.metrics.Observe(metrics.OutcomeRetrySuccess, time.Since(start))
	return &draft, nil
}

func (e *Extractor) complete(ctx context.Context, messages []openai.Message) (*openai.ChatResponse, error) {
	temperature := 0.0
	resp, err := e.client.ChatCompletion(ctx, openai.ChatRequest{
		Messages:       messages,
		Temperature:    &temperature,
		MaxTokens:      defaultMaxTokens,
		ResponseFormat: &openai.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "receipt extraction failed")
	}
	return resp, nil
}
