package reliefline

import (
	"fmt"
	"strings"

	"github.com/harunnryd/reliefline/pkg/configutil"
	"github.com/harunnryd/reliefline/pkg/ticket"
)

// ClassifierFactory builds a ticket classifier from the loaded config. A nil
// classifier with a nil error stores tickets unclassified.
type ClassifierFactory func(cfg Config) (ticket.Classifier, error)

type ProviderRegistry struct {
	classifiers map[string]ClassifierFactory
}

// NewProviderRegistry returns a registry with the built-in "openai" and
// "none" classifiers.
func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{classifiers: make(map[string]ClassifierFactory)}
	r.RegisterClassifier("openai", newOpenAIClassifier)
	r.RegisterClassifier("none", func(Config) (ticket.Classifier, error) { return nil, nil })
	return r
}

func (r *ProviderRegistry) RegisterClassifier(name string, factory ClassifierFactory) {
	r.classifiers[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildClassifier(provider string, cfg Config) (ticket.Classifier, error) {
	fn := r.classifiers[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("classifier provider not registered: %s", provider)
	}
	return fn(cfg)
}

type openAIClassifierSettings struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	MaxRetries        int    `mapstructure:"max_retries"`
	BackoffMS         int    `mapstructure:"backoff_ms"`
	BreakerThreshold  int    `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int    `mapstructure:"breaker_cooldown_ms"`
}

var openAIClassifierSchema = configutil.Schema{
	Optional: []string{"api_key", "base_url", "model", "max_retries", "backoff_ms", "breaker_threshold", "breaker_cooldown_ms"},
}

func newOpenAIClassifier(cfg Config) (ticket.Classifier, error) {
	settings := cfg.Ticket.Classifier.Settings
	if err := configutil.ValidateSettings(settings, openAIClassifierSchema); err != nil {
		return nil, fmt.Errorf("ticket.classifier.settings: %w", err)
	}
	s := openAIClassifierSettings{Model: "gpt-4o", MaxRetries: 2, BackoffMS: 500, BreakerThreshold: 5, BreakerCooldownMS: 30000}
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("ticket.classifier.settings: %w", err)
	}
	c, err := ticket.NewOpenAIClassifier(ticket.ClassifierConfig{
		APIKey:           configutil.StringOr(s.APIKey, cfg.OpenAI.APIKey),
		BaseURL:          s.BaseURL,
		Model:            s.Model,
		MaxRetries:       s.MaxRetries,
		Backoff:          configutil.Millis(s.BackoffMS, 0),
		BreakerThreshold: s.BreakerThreshold,
		BreakerCooldown:  configutil.Millis(s.BreakerCooldownMS, 0),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
