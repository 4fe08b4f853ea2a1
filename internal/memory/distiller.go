package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sentientmesh/synapse/pkg/xmlutil"
)

const distillSystemPrompt = `You extract durable facts from a conversation turn.

Given one user message and one assistant reply, list the standalone facts
about the user worth remembering long-term: identity, preferences, location,
relationships, commitments. Rewrite each fact so it makes sense without the
conversation. Output one fact per line, nothing else. If there is nothing
worth remembering, output NONE.`

// Distiller condenses a chat exchange into standalone facts using the
// Anthropic Messages API. It is optional: any failure is reported to the
// caller, who falls back to storing the raw exchange.
type Distiller struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

// NewDistiller creates a distiller pinned to one model.
func NewDistiller(apiKey, model string, logger *slog.Logger) *Distiller {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Distiller{
		client:    &client,
		model:     model,
		maxTokens: 512,
		logger:    logger,
	}
}

// Distill returns the standalone facts extracted from one exchange. An
// empty slice with nil error means the exchange held nothing durable.
func (d *Distiller) Distill(ctx context.Context, userMessage, assistantReply string) ([]string, error) {
	prompt := fmt.Sprintf("<user_message>\n%s\n</user_message>\n\n<assistant_reply>\n%s\n</assistant_reply>",
		xmlutil.Escape(userMessage), xmlutil.Escape(assistantReply))

	resp, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: d.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: distillSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("distilling facts: %w", err)
	}

	var text string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text = resp.Content[i].Text
			break
		}
	}

	facts := parseFactLines(text)
	d.logger.Debug("distilled facts", "count", len(facts))
	return facts, nil
}

func parseFactLines(text string) []string {
	var facts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}
		facts = append(facts, line)
	}
	return facts
}
