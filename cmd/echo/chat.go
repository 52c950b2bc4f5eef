package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/ent0n29/echo/internal/voice"
)

type textTurns interface {
	RunText(ctx context.Context, sessionID, text string) (voice.TurnResult, error)
}

type sessionClearer interface {
	ClearMemory(ctx context.Context, sessionID string)
}

// runChat is a line-based REPL bound to a single session.
func runChat(ctx context.Context, in io.Reader, out io.Writer, turns textTurns, mem sessionClearer, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sessionID := uuid.NewString()
	fmt.Fprintf(out, "%s is listening. /clear forgets this conversation, /quit exits.\n", name)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			mem.ClearMemory(ctx, sessionID)
			fmt.Fprintln(out, "(memory cleared)")
			continue
		}

		res, err := turns.RunText(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(out, "(error: %v)\n", err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", name, res.ResponseText)
		fmt.Fprintf(out, "   [intent=%s emotion=%s sentiment=%s]\n", res.Intent, res.Emotion, res.Sentiment)
	}
}
