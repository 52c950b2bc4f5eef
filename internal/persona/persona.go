// Package persona holds the assistant personalities that shape reply prompts.
package persona

import (
	"fmt"
	"strings"
)

// Kind names a built-in persona.
type Kind string

const (
	KindCaring  Kind = "caring"
	KindPlayful Kind = "playful"
)

// PromptContext is everything a persona may weave into its system prompt.
type PromptContext struct {
	UserText  string
	Intent    string
	Emotion   string
	Sentiment string
	// History is the rendered transcript, empty for a fresh session.
	History string
}

type Persona interface {
	Name() string
	Kind() Kind
	BuildPrompt(PromptContext) string
	Temperature() float64
	FallbackReply() string
}

func New(kind Kind) (Persona, error) {
	switch kind {
	case KindCaring:
		return Caring{}, nil
	case KindPlayful:
		return Playful{}, nil
	default:
		return nil, fmt.Errorf("unknown persona %q", kind)
	}
}

// Parse resolves a configured persona name. Empty selects Caring.
func Parse(name string) (Persona, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "echo":
		return Caring{}, nil
	case "suzi":
		return Playful{}, nil
	}
	return New(Kind(n))
}

// Caring is Echo: warm, empathetic, brief.
type Caring struct{}

func (Caring) Name() string          { return "Echo" }
func (Caring) Kind() Kind            { return KindCaring }
func (Caring) Temperature() float64  { return 0.8 }
func (Caring) FallbackReply() string { return "I hear you. I'm here for you, always." }

func (Caring) BuildPrompt(pc PromptContext) string {
	var b strings.Builder
	b.WriteString("You are Echo, a helpful AI assistant.\n")
	writeSignals(&b, pc)
	b.WriteString("Reply as Echo with empathy and understanding (2-3 sentences):")
	if pc.History != "" {
		b.WriteString("\nHere is the recent conversation:\n")
		b.WriteString(pc.History)
		b.WriteString("\nRespond appropriately.")
	}
	return b.String()
}

// Playful teases but stays kind.
type Playful struct{}

func (Playful) Name() string          { return "Suzi" }
func (Playful) Kind() Kind            { return KindPlayful }
func (Playful) Temperature() float64  { return 0.95 }
func (Playful) FallbackReply() string { return "Oh, you went quiet on me? Go on, I'm all ears." }

func (Playful) BuildPrompt(pc PromptContext) string {
	var b strings.Builder
	b.WriteString("You are Suzi. Your style: playful, bold, teasing. ")
	b.WriteString("Your goals: keep the conversation fun while staying caring.\n")
	writeSignals(&b, pc)
	b.WriteString("Talk in a light, teasing way, never formal or robotic. ")
	b.WriteString("Keep it kind and never vulgar. Never say you are Echo. ")
	b.WriteString("Reply in 2-3 sentences.")
	if pc.History != "" {
		b.WriteString("\nHere is the recent conversation:\n")
		b.WriteString(pc.History)
		b.WriteString("\nStay consistent with it.")
	}
	return b.String()
}

func writeSignals(b *strings.Builder, pc PromptContext) {
	fmt.Fprintf(b, "User's emotion: %s\n", orDefault(pc.Emotion, "neutral"))
	fmt.Fprintf(b, "User's intent: %s\n", orDefault(pc.Intent, "unknown"))
	fmt.Fprintf(b, "Sentiment: %s\n", orDefault(pc.Sentiment, "neutral"))
	fmt.Fprintf(b, "User said: %s\n", pc.UserText)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
