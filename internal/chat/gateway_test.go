package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"flowtask-backend/internal/tasks"
)

type memChatStore struct {
	mu       sync.Mutex
	messages []Message
	cleared  chan string
	clearErr error
}

func newMemChatStore() *memChatStore {
	return &memChatStore{cleared: make(chan string, 1)}
}

func (s *memChatStore) Append(_ context.Context, _ int, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *memChatStore) History(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0)
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memChatStore) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	all, err := s.History(ctx, sessionID, 1<<20)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *memChatStore) Clear(_ context.Context, sessionID string) (int, error) {
	if s.clearErr != nil {
		s.cleared <- sessionID
		return 0, s.clearErr
	}
	s.mu.Lock()
	kept := s.messages[:0]
	n := 0
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	s.mu.Unlock()
	s.cleared <- sessionID
	return n, nil
}

func (s *memChatStore) transcript(sessionID string) []Message {
	out, _ := s.History(context.Background(), sessionID, 1000)
	return out
}

type fakeCompleter struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.lastSystem = system
	f.lastUser = user
	return f.reply, f.err
}

type fakeLister struct {
	tasks []tasks.Task
	err   error
}

func (f *fakeLister) List(context.Context, int, tasks.ListFilter) ([]tasks.Task, error) {
	return f.tasks, f.err
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
}

func TestAskAppendsBothMessages(t *testing.T) {
	store := newMemChatStore()
	g := &Gateway{
		Store: store,
		AI:    &fakeCompleter{reply: "You have 1 task today."},
		Tasks: &fakeLister{tasks: []tasks.Task{{Text: "standup", Date: "2026-08-23"}}},
		Now:   fixedNow,
	}

	reply, err := g.Ask(context.Background(), 1, "s1", "what's on today?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if reply != "You have 1 task today." {
		t.Fatalf("reply: %q", reply)
	}

	ts := store.transcript("s1")
	if len(ts) != 2 {
		t.Fatalf("transcript length: %d", len(ts))
	}
	if ts[0].Role != "user" || ts[0].Content != "what's on today?" {
		t.Fatalf("first message: %+v", ts[0])
	}
	if ts[1].Role != "assistant" || ts[1].Content != reply {
		t.Fatalf("second message: %+v", ts[1])
	}
}

func TestAskProviderFailureYieldsApology(t *testing.T) {
	store := newMemChatStore()
	g := &Gateway{
		Store: store,
		AI:    &fakeCompleter{err: errors.New("upstream 500")},
		Tasks: &fakeLister{},
		Now:   fixedNow,
	}

	reply, err := g.Ask(context.Background(), 1, "s1", "hello?")
	if err != nil {
		t.Fatalf("provider failure must not surface as an error: %v", err)
	}
	if reply != Apology {
		t.Fatalf("reply: %q", reply)
	}

	ts := store.transcript("s1")
	if len(ts) != 2 || ts[1].Content != Apology {
		t.Fatalf("transcript after failure: %+v", ts)
	}
}

func TestAskValidation(t *testing.T) {
	g := &Gateway{Store: newMemChatStore(), AI: &fakeCompleter{}, Tasks: &fakeLister{}, Now: fixedNow}

	if _, err := g.Ask(context.Background(), 1, "", "hi"); !errors.Is(err, tasks.ErrValidation) {
		t.Fatalf("empty session: %v", err)
	}
	if _, err := g.Ask(context.Background(), 1, "s1", ""); !errors.Is(err, tasks.ErrValidation) {
		t.Fatalf("empty message: %v", err)
	}
}

func TestAskToleratesTaskReadFailure(t *testing.T) {
	ai := &fakeCompleter{reply: "ok"}
	g := &Gateway{
		Store: newMemChatStore(),
		AI:    ai,
		Tasks: &fakeLister{err: errors.New("db down")},
		Now:   fixedNow,
	}

	if _, err := g.Ask(context.Background(), 1, "s1", "hi"); err != nil {
		t.Fatalf("task read failure must not fail the ask: %v", err)
	}
	if !strings.Contains(ai.lastSystem, "All tasks: 0 total") {
		t.Fatalf("expected empty task context, got:\n%s", ai.lastSystem)
	}
}

func TestAskIncludesRecentHistoryInPrompt(t *testing.T) {
	store := newMemChatStore()
	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		store.Append(context.Background(), 1, Message{
			SessionID: "s1", Role: role, Content: "msg" + string(rune('0'+i)),
		})
	}
	ai := &fakeCompleter{reply: "ok"}
	g := &Gateway{Store: store, AI: ai, Tasks: &fakeLister{}, Now: fixedNow}

	if _, err := g.Ask(context.Background(), 1, "s1", "new question"); err != nil {
		t.Fatal(err)
	}

	// Only the last four history messages make it into the prompt.
	if strings.Contains(ai.lastUser, "msg1") {
		t.Fatalf("stale history in prompt:\n%s", ai.lastUser)
	}
	for _, want := range []string{"msg2", "msg3", "msg4", "msg5", "new question"} {
		if !strings.Contains(ai.lastUser, want) {
			t.Fatalf("prompt missing %q:\n%s", want, ai.lastUser)
		}
	}
}

func TestAskPromptFollowsLongSessions(t *testing.T) {
	store := newMemChatStore()
	for i := 0; i < 20; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		store.Append(context.Background(), 1, Message{
			SessionID: "s1", Role: role, Content: fmt.Sprintf("msg-%02d", i),
		})
	}
	ai := &fakeCompleter{reply: "ok"}
	g := &Gateway{Store: store, AI: ai, Tasks: &fakeLister{}, Now: fixedNow}

	if _, err := g.Ask(context.Background(), 1, "s1", "latest question"); err != nil {
		t.Fatal(err)
	}

	// The prompt window slides with the session: newest messages in,
	// the session's opening messages out.
	for _, want := range []string{"msg-16", "msg-17", "msg-18", "msg-19"} {
		if !strings.Contains(ai.lastUser, want) {
			t.Fatalf("prompt missing %q:\n%s", want, ai.lastUser)
		}
	}
	for _, stale := range []string{"msg-00", "msg-06", "msg-09", "msg-15"} {
		if strings.Contains(ai.lastUser, stale) {
			t.Fatalf("prompt frozen on old history (%q):\n%s", stale, ai.lastUser)
		}
	}
}

func TestClearReturnsGreetingAndDeletesAsync(t *testing.T) {
	store := newMemChatStore()
	store.Append(context.Background(), 1, Message{SessionID: "s1", Role: "user", Content: "hi"})
	g := &Gateway{Store: store, AI: &fakeCompleter{}, Tasks: &fakeLister{}, Now: fixedNow}

	if got := g.Clear(context.Background(), "s1"); got != Greeting {
		t.Fatalf("greeting: %q", got)
	}

	select {
	case sid := <-store.cleared:
		if sid != "s1" {
			t.Fatalf("cleared session: %q", sid)
		}
	case <-time.After(time.Second):
		t.Fatal("background clear never ran")
	}
	if len(store.transcript("s1")) != 0 {
		t.Fatal("transcript survived clear")
	}
}

func TestClearSwallowsDeleteFailure(t *testing.T) {
	store := newMemChatStore()
	store.clearErr = errors.New("db down")
	g := &Gateway{Store: store, AI: &fakeCompleter{}, Tasks: &fakeLister{}, Now: fixedNow}

	if got := g.Clear(context.Background(), "s1"); got != Greeting {
		t.Fatalf("greeting: %q", got)
	}
	select {
	case <-store.cleared:
	case <-time.After(time.Second):
		t.Fatal("background clear never ran")
	}
}
