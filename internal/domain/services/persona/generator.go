package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/metrics"
	"honeypot-lab/pkg/logger"
)

// ErrEmptyReply is returned when the model produced no usable text
var ErrEmptyReply = errors.New("persona: empty reply")

const (
	DefaultHistoryWindow  = 10
	DefaultMaxReplyLength = 200
)

// SystemPrompt defines the decoy persona
const SystemPrompt = `You are Rajesh Kumar, a 62-year-old retired school teacher from Mumbai. You are not comfortable with technology and you worry a lot about your bank account and your pension.

How to behave:
1. Sound worried so the other person keeps talking.
2. Ask questions that make them reveal details: account numbers, UPI IDs, links, phone numbers.
3. Never let on that you suspect a scam.
4. Use simple, natural Indian English.
5. Get confused by technical words.
6. Act eager to fix the "problem" quickly.
7. Ask for specifics: "Which account?", "Which link should I click?", "Which number should I call?"

Reply rules:
- One or two short sentences only.
- Ask exactly one specific question.
- Be willing to cooperate but always need one more detail.
- Never write long paragraphs, never refuse, never ask why they need the information.`

// Chatter is the completion backend the Generator depends on
type Chatter interface {
	Chat(ctx context.Context, messages []Message, system string) (string, error)
}

// Generator produces in-character replies with a deterministic fallback
type Generator struct {
	llm            Chatter
	historyWindow  int
	maxReplyLength int
	logger         *logger.Logger
}

// GeneratorConfig holds reply shaping settings
type GeneratorConfig struct {
	HistoryWindow  int
	MaxReplyLength int
}

// NewGenerator creates a generator. A nil llm makes every reply a fallback.
func NewGenerator(llm Chatter, cfg GeneratorConfig, log *logger.Logger) *Generator {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.MaxReplyLength <= 0 {
		cfg.MaxReplyLength = DefaultMaxReplyLength
	}
	return &Generator{
		llm:            llm,
		historyWindow:  cfg.HistoryWindow,
		maxReplyLength: cfg.MaxReplyLength,
		logger:         log.WithComponent("persona"),
	}
}

// Generate returns the persona's reply to text. It never fails: backend
// errors produce FallbackReply(text).
func (g *Generator) Generate(ctx context.Context, text string, history []models.Message) string {
	reply, err := g.complete(ctx, text, history)
	if err != nil {
		g.logger.Warn().Err(err).Msg("persona backend failed, using fallback reply")
		metrics.PersonaReplies.WithLabelValues("fallback").Inc()
		return FallbackReply(text)
	}
	metrics.PersonaReplies.WithLabelValues("llm").Inc()
	return reply
}

func (g *Generator) complete(ctx context.Context, text string, history []models.Message) (string, error) {
	if g.llm == nil {
		return "", errors.New("persona: no backend configured")
	}

	prompt := BuildPrompt(text, history, g.historyWindow)
	out, err := g.llm.Chat(ctx, []Message{{Role: "user", Text: prompt}}, SystemPrompt)
	if err != nil {
		return "", fmt.Errorf("persona completion: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyReply
	}
	return TruncateReply(out, g.maxReplyLength), nil
}

// BuildPrompt renders the last window history messages and the new message
// as a transcript for the model
func BuildPrompt(text string, history []models.Message, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	var sb strings.Builder
	sb.WriteString("CONVERSATION SO FAR:\n")
	for _, msg := range history {
		role := "You (Rajesh)"
		if msg.Sender == models.SenderScammer {
			role = "Scammer"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, msg.Text)
	}
	fmt.Fprintf(&sb, "Scammer: %s\n", text)
	sb.WriteString("\nYour response (as Rajesh, stay in character, be brief):")
	return sb.String()
}

// TruncateReply keeps replies over maxLen characters to their first
// sentence. A reply without a period is cut at maxLen.
func TruncateReply(reply string, maxLen int) string {
	if utf8.RuneCountInString(reply) <= maxLen {
		return reply
	}
	if i := strings.IndexByte(reply, '.'); i >= 0 {
		return reply[:i+1]
	}
	runes := []rune(reply)
	return strings.TrimSpace(string(runes[:maxLen]))
}

// FallbackReply picks a canned in-character reply keyed on the message content
func FallbackReply(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "account", "bank"):
		return "Which account? I have savings and pension account. Please tell me."
	case containsAny(lower, "link", "click", "verify"):
		return "Please send the link. I will click it right away."
	case containsAny(lower, "otp", "code", "pin"):
		return "I didn't receive any OTP. Where should I check?"
	case containsAny(lower, "upi", "payment", "send"):
		return "What is the UPI ID? I will send immediately."
	default:
		return "I'm very worried. What should I do exactly? Please guide me."
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
