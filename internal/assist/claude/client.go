// Package claude implements assist.Analyzer with the Anthropic API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/fieldtriage/internal/assist"
)

const systemPrompt = `You extract structured triage fields from a field responder's free-text observation of one patient.

Respond with a single JSON object. All keys are optional; omit anything the text does not state. Never invent a measurement.

Keys:
- "ageGroup": "child" or "adult"
- "vitals": object with optional "pulse" (bpm, integer), "breathing" ("normal"|"labored"|"absent"), "circulation" ("normal"|"bleeding"|"shock"), "consciousness" ("alert"|"verbal"|"pain"|"unresponsive"), "respiratoryRate" (breaths/min, integer), "capillaryRefill" (seconds, number), "radialPulse" ("present"|"absent")
- "mobility": "ambulatory" or "non_ambulatory"
- "injuries": array of short injury descriptions
- "notes": anything relevant that does not fit the fields above

Respond with the JSON object only, no prose.`

// Client analyzes observation text with the Anthropic Messages API.
type Client struct {
	client anthropic.Client
	model  string
	logger log.Logger
}

// New creates a Claude-backed analyzer.
func New(apiKey, model string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger,
	}
}

// Analyze implements assist.Analyzer.
func (c *Client) Analyze(ctx context.Context, text string) (*assist.Suggestion, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}

	c.logger.Info(ctx, "assist response",
		"model", c.model,
		"tokens_in", msg.Usage.InputTokens,
		"tokens_out", msg.Usage.OutputTokens,
	)

	sug, err := parseSuggestion(textContent(msg))
	if err != nil {
		return nil, err
	}
	return sug, nil
}

func textContent(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseSuggestion decodes the model's JSON reply, tolerating a fenced
// code block around it.
func parseSuggestion(raw string) (*assist.Suggestion, error) {
	s := strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	if s == "" {
		return nil, fmt.Errorf("empty assist reply")
	}

	var sug assist.Suggestion
	if err := json.Unmarshal([]byte(s), &sug); err != nil {
		return nil, fmt.Errorf("parse assist reply: %w", err)
	}
	return &sug, nil
}
