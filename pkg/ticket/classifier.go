package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/reliefline/pkg/errorsx"
	"github.com/harunnryd/reliefline/pkg/resilience"
	"github.com/harunnryd/reliefline/pkg/transcript"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Classifier extracts ticket fields from a call transcript.
type Classifier interface {
	Classify(ctx context.Context, turns []transcript.Turn) (Fields, error)
}

const promptTemplate = "based on provided transcript %s, which is a communication between a victim and emergency services, " +
	"produce the response in json format, to best of your knowledge with following keys 'name', 'priority', 'summary', " +
	"'services needed':[ambulance, firebrigade], 'life threatening', 'ticket_type' (one of the fire, earthquake, flood, " +
	"hurricane, landslide, disease), 'smoke visibility', 'fire visibility', 'breathing issue', 'location', " +
	"'help for whom':[yourself, someone else], just give the JSON, I dont' need explanations or assumptions"

// Prompt renders the classification request for turns.
func Prompt(turns []transcript.Turn) string {
	b, _ := json.Marshal(turns)
	return fmt.Sprintf(promptTemplate, string(b))
}

type ClassifierConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxRetries       int
	Backoff          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// OpenAIClassifier asks a chat-completions model for the ticket fields.
type OpenAIClassifier struct {
	client  openai.Client
	model   string
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
}

func NewOpenAIClassifier(cfg ClassifierConfig) (*OpenAIClassifier, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errorsx.Errorf(errorsx.ReasonConfig, "ticket: classifier api key required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	retry := resilience.NewRetryPolicy(cfg.MaxRetries, cfg.Backoff)
	retry.Retryable = transient
	return &OpenAIClassifier{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, transient),
	}, nil
}

func (c *OpenAIClassifier) Classify(ctx context.Context, turns []transcript.Turn) (Fields, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(Prompt(turns))},
	}
	var content string
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if !c.breaker.Allow() {
			return resilience.ErrCircuitOpen
		}
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			c.breaker.OnError(err)
			return err
		}
		c.breaker.OnSuccess()
		if len(resp.Choices) == 0 {
			return errors.New("no choices in completion")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Fields{}, errorsx.Wrap(err, errorsx.ReasonClassifyCircuitOpen)
	}
	if err != nil {
		return Fields{}, errorsx.Wrap(fmt.Errorf("ticket: classify: %w", err), errorsx.ReasonClassify)
	}
	f, err := ParseFields(content)
	if err != nil {
		return Fields{}, errorsx.Wrap(err, errorsx.ReasonClassify)
	}
	return f, nil
}

// transient reports whether err is worth retrying: rate limits, server
// errors and transport failures.
func transient(err error) bool {
	if err == nil || errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}
