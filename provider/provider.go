package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/telemetry"
	"github.com/mohammad-safakhou/newslens/models"
	openai_provider "github.com/mohammad-safakhou/newslens/provider/openai"
)

// ErrMissingAPIKey is returned when no LLM key is configured.
var ErrMissingAPIKey = errors.New("llm.api_key not set")

// BiasClassifier labels the editorial lean of one news article.
type BiasClassifier interface {
	ClassifyBias(ctx context.Context, title, text string) (models.BiasLabel, error)
}

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	BiasClassifier
	Summarize(ctx context.Context, title, content string) (string, error)
	GenerateInsights(ctx context.Context, leftContext, rightContext string) (models.Insights, error)
	Chat(ctx context.Context, articleContext string, history []models.ChatMessage, message string) (models.ChatReply, error)
}

// NewProvider creates the OpenAI-compatible client described by cfg.
func NewProvider(cfg config.LLMConfig, logger logrus.FieldLogger, metrics *telemetry.Metrics) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return openai_provider.NewOpenAIClient(cfg,
		openai_provider.WithLogger(logger),
		openai_provider.WithMetrics(metrics),
	), nil
}
