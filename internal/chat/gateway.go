package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"flowtask-backend/internal/ai"
	"flowtask-backend/internal/tasks"
)

const (
	// Apology replaces the assistant's reply when the provider cannot be
	// reached. It is persisted like a normal message and never retried.
	Apology = "Sorry, I couldn't reach the assistant just now. Please try again in a moment."

	// Greeting is the single message a cleared transcript starts with.
	Greeting = "Hi! I'm FlowAI. Ask me anything about your tasks."

	historyWindow   = 10
	historyInPrompt = 4
)

type TaskLister interface {
	List(ctx context.Context, userID int, f tasks.ListFilter) ([]tasks.Task, error)
}

// Gateway relays user questions to the completion provider, tagging them
// with task-derived context and the session's recent transcript.
type Gateway struct {
	Store Store
	AI    ai.Completer
	Tasks TaskLister
	Now   func() time.Time
}

// Ask appends the user message and the assistant's reply to the session
// transcript and returns the reply. Provider failure produces an apology
// reply instead of an error: the transcript still gains exactly one user
// message and one assistant message.
func (g *Gateway) Ask(ctx context.Context, userID int, sessionID, message string) (string, error) {
	if sessionID == "" || message == "" {
		return "", fmt.Errorf("%w: session_id and message required", tasks.ErrValidation)
	}

	today := g.now().Format(tasks.DateLayout)

	all, err := g.Tasks.List(ctx, userID, tasks.ListFilter{})
	if err != nil {
		log.Printf("[WARN] chat task context read failed: %v", err)
		all = nil
	}
	system := ai.SystemPrompt(ai.BuildTaskContext(all, today))

	recent, err := g.Store.Recent(ctx, sessionID, historyWindow)
	if err != nil {
		log.Printf("[WARN] chat history read failed: %v", err)
		recent = nil
	}

	reply, err := g.AI.Complete(ctx, system, promptWithHistory(recent, message))
	if err != nil {
		log.Printf("[WARN] chat completion failed session=%s: %v", sessionID, err)
		reply = Apology
	}

	g.append(ctx, userID, Message{SessionID: sessionID, Role: "user", Content: message})
	g.append(ctx, userID, Message{SessionID: sessionID, Role: "assistant", Content: reply})

	return reply, nil
}

// History returns the persisted transcript in timestamp order.
func (g *Gateway) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return g.Store.History(ctx, sessionID, limit)
}

// Clear resets the session to its greeting. Server-side history deletion
// runs in the background; its failure is logged and swallowed, since the
// reset transcript is the user-visible contract.
func (g *Gateway) Clear(ctx context.Context, sessionID string) string {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := g.Store.Clear(bg, sessionID); err != nil {
			log.Printf("[WARN] chat history delete failed session=%s: %v", sessionID, err)
		}
	}()
	return Greeting
}

func (g *Gateway) append(ctx context.Context, userID int, m Message) {
	if err := g.Store.Append(ctx, userID, m); err != nil {
		log.Printf("[WARN] chat transcript append failed session=%s: %v", m.SessionID, err)
	}
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func promptWithHistory(recent []Message, message string) string {
	if len(recent) == 0 {
		return message
	}
	if len(recent) > historyInPrompt {
		recent = recent[len(recent)-historyInPrompt:]
	}

	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, m := range recent {
		role := "Assistant"
		if m.Role == "user" {
			role = "User"
		}
		content := m.Content
		if len(content) > 200 {
			content = content[:200]
		}
		fmt.Fprintf(&b, "%s: %s\n", role, content)
	}
	fmt.Fprintf(&b, "\nUser's new message: %s", message)
	return b.String()
}
