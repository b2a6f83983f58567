package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/internal/telemetry"
	"github.com/mohammad-safakhou/newslens/models"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	maxResponseSize = 1 << 20

	biasContentChars    = 1500
	summaryContentChars = 3000
	contextChars        = 8000
)

// ErrUnparseableLabel is returned when the model answers outside the label set.
var ErrUnparseableLabel = errors.New("model answer is not a bias label")

// APIError carries a non-200 answer from the completions endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status: %d: %s", e.Status, e.Body)
}

// client implements provider.Provider using the chat completions API
type client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	metrics     *telemetry.Metrics
	logger      *logrus.Entry
}

// Option customises the client.
type Option func(*client)

func WithHTTPClient(c *http.Client) Option { return func(cl *client) { cl.httpClient = c } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(cl *client) { cl.logger = logging.Component(l, "openai") }
}

func WithMetrics(m *telemetry.Metrics) Option { return func(cl *client) { cl.metrics = m } }

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// request represents a request to the OpenAI API
type request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// response represents a response from the OpenAI API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg config.LLMConfig, opts ...Option) *client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	c := &client{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logging.Component(nil, "openai"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClassifyBias asks for a single label from the fixed set. Answers that do
// not parse to a label are errors, never a silent default.
func (c *client) ClassifyBias(ctx context.Context, title, text string) (models.BiasLabel, error) {
	labels := make([]string, 0, len(models.BiasLabels()))
	for _, l := range models.BiasLabels() {
		labels = append(labels, string(l))
	}
	prompt := fmt.Sprintf(`Analyze the political bias of this news article. Classify it as exactly one of: %s.

Title: %s
Content: %s

Respond with ONLY the label.`, strings.Join(labels, ", "), title, helpers.Truncate(text, biasContentChars))

	answer, err := c.sendRequest(ctx, "bias", []Message{{Role: "user", Content: prompt}}, false)
	if err != nil {
		return "", err
	}
	label, ok := models.ParseBiasLabel(answer)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnparseableLabel, helpers.TruncateEllipsis(answer, 40))
	}
	return label, nil
}

// Summarize returns a 3-5 sentence English summary.
func (c *client) Summarize(ctx context.Context, title, content string) (string, error) {
	prompt := fmt.Sprintf(`Provide a concise summary (3-5 sentences) of the following article. The summary MUST be in English, regardless of the original language.

Title: %s

Content:
%s

Summary (in English):`, title, helpers.Truncate(content, summaryContentChars))

	answer, err := c.sendRequest(ctx, "summary", []Message{{Role: "user", Content: prompt}}, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// GenerateInsights contrasts the two contexts and returns JSON decoded insights.
func (c *client) GenerateInsights(ctx context.Context, leftContext, rightContext string) (models.Insights, error) {
	prompt := fmt.Sprintf(`Analyze the following articles from different political perspectives and provide insights.

LEFT-LEANING ARTICLES:
%s

RIGHT-LEANING ARTICLES:
%s

Provide three things:
1. key_takeaway_left: A 2-3 sentence key insight or takeaway from the left-leaning perspective
2. key_takeaway_right: A 2-3 sentence key insight or takeaway from the right-leaning perspective
3. common_ground: An array of EXACTLY 3 objects, each with:
   - "title": A short 2-4 word title for the common ground area
   - "bullet_point": A complete sentence describing the common ground or shared concern in that area

Format your response as JSON with these three keys: key_takeaway_left (string), key_takeaway_right (string), common_ground (array of 3 objects with title and bullet_point)`,
		helpers.Truncate(leftContext, contextChars), helpers.Truncate(rightContext, contextChars))

	answer, err := c.sendRequest(ctx, "insights", []Message{{Role: "user", Content: prompt}}, true)
	if err != nil {
		return models.Insights{}, err
	}
	var out models.Insights
	if err := helpers.DecodeJSON(answer, &out); err != nil {
		return models.Insights{}, fmt.Errorf("failed to parse insights: %w", err)
	}
	return out, nil
}

// Chat answers a question grounded on articleContext and suggests follow-ups.
func (c *client) Chat(ctx context.Context, articleContext string, history []models.ChatMessage, message string) (models.ChatReply, error) {
	systemPrompt := fmt.Sprintf(`You are a news analysis assistant. Answer the user's question using only the articles below. Point out where coverage from different outlets disagrees.

ARTICLES:
%s

Respond ONLY with valid JSON in the following format:
{"reply": "your answer", "suggestions": ["up to three short follow-up questions"]}`, helpers.Truncate(articleContext, contextChars))

	messages := []Message{{Role: "system", Content: systemPrompt}}
	for _, m := range history {
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}
	messages = append(messages, Message{Role: "user", Content: message})

	answer, err := c.sendRequest(ctx, "chat", messages, true)
	if err != nil {
		return models.ChatReply{}, err
	}
	var out models.ChatReply
	if err := helpers.DecodeJSON(answer, &out); err != nil {
		return models.ChatReply{}, fmt.Errorf("failed to parse chat reply: %w", err)
	}
	if len(out.Suggestions) > 3 {
		out.Suggestions = out.Suggestions[:3]
	}
	return out, nil
}

// sendRequest sends a request to the chat completions endpoint
func (c *client) sendRequest(ctx context.Context, operation string, messages []Message, jsonMode bool) (content string, err error) {
	defer func() { c.metrics.ObserveLLM(operation, err) }()

	requestBody := request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if jsonMode {
		requestBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	c.logger.WithFields(logrus.Fields{"operation": operation, "model": c.model, "messages": len(messages)}).Debug("sending completion request")

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxResponseSize)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Body: helpers.TruncateEllipsis(string(body), 200)}
	}

	var openaiResp response
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return openaiResp.Choices[0].Message.Content, nil
}
