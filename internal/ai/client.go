// Package ai wraps an OpenAI-compatible chat completion endpoint (Groq by
// default) with model rotation and user-facing error classification.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/pkg/constants"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// DefaultModels is the rotation order used when none is configured.
var DefaultModels = []string{
	"llama-3.1-8b-instant",
	"llama-3.1-70b-versatile",
	"mixtral-8x7b-32768",
	"gemma2-9b-it",
}

// Config configures a Client.
type Config struct {
	APIKey      string
	BaseURL     string
	Models      []string
	Model       string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
}

// Answer is one completion.
type Answer struct {
	Text  string
	Model string
}

// KeyStatus is the result of CheckKey.
type KeyStatus struct {
	Configured bool
	Valid      bool
	Model      string
	Detail     string
}

// Client is safe for concurrent use.
type Client struct {
	api       *openai.Client
	models    []string
	maxTokens int
	temp      float32
	keySet    bool

	mu      sync.RWMutex
	current string
}

// New returns a Client. A client without an API key answers every call
// with a configuration error.
func New(cfg Config) *Client {
	models := cfg.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	current := cfg.Model
	if current == "" || !contains(models, current) {
		current = models[0]
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = constants.DefaultAIMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = constants.DefaultAIBaseURL
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: constants.DefaultAITimeout}
	}

	return &Client{
		api:       openai.NewClientWithConfig(oc),
		models:    append([]string(nil), models...),
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
		keySet:    cfg.APIKey != "",
		current:   current,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.keySet }

// Model returns the model currently in use.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Models returns the rotation list.
func (c *Client) Models() []string {
	return append([]string(nil), c.models...)
}

// SetModel switches to name, which must be in the rotation list.
func (c *Client) SetModel(name string) error {
	if !contains(c.models, name) {
		return apperr.Usage("Unknown model **%s**. Available models:\n%s", name, Bullets(c.models))
	}
	c.mu.Lock()
	c.current = name
	c.mu.Unlock()
	logger.WithField("model", name).Info("ai-model-switched")
	return nil
}

// Ask sends prompt as a single user message. When the current model is
// gone (404) it rotates through the list at most once.
func (c *Client) Ask(ctx context.Context, prompt string) (Answer, error) {
	if !c.keySet {
		return Answer{}, notConfigured()
	}
	return c.complete(ctx, prompt, c.maxTokens)
}

// CheckKey verifies the key with a tiny completion.
func (c *Client) CheckKey(ctx context.Context) KeyStatus {
	if !c.keySet {
		return KeyStatus{Detail: "No API key is configured."}
	}
	ans, err := c.complete(ctx, `Say "API test successful"`, 10)
	if err != nil {
		return KeyStatus{Configured: true, Model: c.Model(), Detail: apperr.ShortMessage(err)}
	}
	return KeyStatus{Configured: true, Valid: true, Model: ans.Model, Detail: "API key is valid and working."}
}

func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (Answer, error) {
	model := c.Model()
	var lastErr error
	for i := 0; i < len(c.models); i++ {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens:   maxTokens,
			Temperature: c.temp,
		})
		if err == nil {
			if len(resp.Choices) == 0 {
				return Answer{}, apperr.Transient(errors.New("empty choices"), "The AI returned an empty response.")
			}
			return Answer{Text: strings.TrimSpace(resp.Choices[0].Message.Content), Model: model}, nil
		}

		lastErr = err
		if statusOf(err) != http.StatusNotFound {
			return Answer{}, classify(err)
		}
		next := c.rotate(model)
		logger.WithFields(logrus.Fields{
			"model": model,
			"next":  next,
		}).Warn("ai-model-unavailable-rotating")
		model = next
	}
	return Answer{}, apperr.Transient(lastErr, "No AI model is available right now.")
}

// rotate moves the current model past failed, unless another caller
// already did.
func (c *Client) rotate(failed string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == failed {
		c.current = c.models[(indexOf(c.models, failed)+1)%len(c.models)]
	}
	return c.current
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classify(err error) error {
	switch code := statusOf(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &apperr.Error{
			Kind: apperr.KindConfiguration,
			Msg:  "The AI API key was rejected.",
			Hint: "Check GROQ_API_KEY and restart the bot.",
			Err:  err,
		}
	case code == http.StatusBadRequest:
		return &apperr.Error{Kind: apperr.KindUsage, Msg: "The AI could not process that request.", Err: err}
	case code == 0, code == http.StatusTooManyRequests, code >= 500:
		return apperr.Transient(err, "The AI service is busy.")
	default:
		return fmt.Errorf("ai completion: %w", err)
	}
}

func notConfigured() error {
	return apperr.Configuration("The AI service is not configured.", "Set GROQ_API_KEY and restart the bot.")
}

// Bullets renders names as a bulleted list.
func Bullets(names []string) string {
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = "• " + n
	}
	return strings.Join(lines, "\n")
}

func contains(list []string, s string) bool {
	return indexOf(list, s) >= 0
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
