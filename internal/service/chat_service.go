package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"bitcoin-gpt-client/internal/api"
	"bitcoin-gpt-client/internal/dto"
	"bitcoin-gpt-client/internal/pkg/logger"
	"bitcoin-gpt-client/internal/store"

	"github.com/google/uuid"
)

var (
	ErrNoSession        = errors.New("no active session")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrDispatchInFlight = errors.New("a message is already being sent")

	// ErrSessionUnused rejects "New Chat" while the current session has
	// never received a message, so an empty session's backend state is
	// not silently discarded.
	ErrSessionUnused = errors.New("you haven't used the current chat yet")
)

// BootstrapState is the latch guarding implicit session creation.
type BootstrapState int

const (
	BootstrapIdle BootstrapState = iota
	BootstrapInFlight
	BootstrapDone
)

// Suggestions offered on an empty chat.
var Suggestions = []string{
	"Myth Busting",
	"Practical Learning",
	"Explain Like I'm 5",
	"Bitcoin Corporate Strategy",
	"Adoption in APAC",
}

// ChatService coordinates message dispatch against session readiness.
// It owns the active session's message sequence and serializes sends:
// at most one dispatch is outstanding, and a second submission while
// one is pending is a rejected no-op, never queued.
type ChatService struct {
	backend  *api.Client
	sessions *SessionService
	creds    *store.CredentialStore
	log      logger.ILogger

	mu             sync.Mutex
	messages       []dto.Message
	dispatching    bool
	sessionLoading bool
	hasUsedSession bool
	bootstrap      BootstrapState
}

func NewChatService(backend *api.Client, sessions *SessionService, creds *store.CredentialStore, log logger.ILogger) *ChatService {
	return &ChatService{
		backend:  backend,
		sessions: sessions,
		creds:    creds,
		log:      log,
	}
}

// Bootstrap creates one implicit session when none exists. The latch is
// flipped to in-flight before the creation call starts, so a concurrent
// trigger during the in-flight window is rejected instead of racing to
// create a second session. The latch survives failures and resets only
// on a full remount.
func (c *ChatService) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	if c.bootstrap != BootstrapIdle {
		c.mu.Unlock()
		return nil
	}
	if c.sessions.CurrentSessionID() != "" {
		c.bootstrap = BootstrapDone
		c.mu.Unlock()
		return nil
	}
	c.bootstrap = BootstrapInFlight
	c.sessionLoading = true
	c.mu.Unlock()

	_, err := c.sessions.CreateNewSession(ctx)

	c.mu.Lock()
	c.bootstrap = BootstrapDone
	c.sessionLoading = false
	c.mu.Unlock()

	if err != nil {
		c.log.Error("chat", "bootstrap session creation failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}

// ResetBootstrap re-arms the latch. Only a full remount calls this;
// session switches do not.
func (c *ChatService) ResetBootstrap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bootstrap = BootstrapIdle
}

func (c *ChatService) BootstrapState() BootstrapState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootstrap
}

// SendMessage appends the user message optimistically, dispatches it,
// and appends the assistant reply on resolution. The caller may clear
// its input buffer as soon as this returns an initiation error or the
// optimistic append has happened; the reply is appended before return.
func (c *ChatService) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	sessionId := c.sessions.CurrentSessionID()
	switch {
	case text == "":
		c.mu.Unlock()
		return ErrEmptyMessage
	case sessionId == "":
		c.mu.Unlock()
		return ErrNoSession
	case c.dispatching:
		c.mu.Unlock()
		return ErrDispatchInFlight
	}
	c.dispatching = true
	c.hasUsedSession = true
	c.messages = append(c.messages, dto.Message{
		Role:      dto.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	c.mu.Unlock()

	res, err := c.backend.SendChat(ctx, sessionId, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatching = false

	if err != nil {
		c.log.Error("chat", "message dispatch failed", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		return err
	}

	reply := dto.Message{
		Role:         dto.RoleAssistant,
		Content:      res.AssistantContent(),
		Timestamp:    time.Now(),
		ExternalLink: res.ExternalLink,
		Sources:      res.Sources,
	}
	if res.Timestamp != nil {
		reply.Timestamp = *res.Timestamp
	}
	c.messages = append(c.messages, reply)
	c.sessions.CacheHistory(sessionId, c.messages)
	return nil
}

// InputDisabled reports whether submission must be refused right now.
// Computed fresh on every call so it always reflects the latest
// dispatch, bootstrap and session state.
func (c *ChatService) InputDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatching || c.sessionLoading || c.sessions.CurrentSessionID() == ""
}

// NewChat discards the current session and starts a fresh one. Refused
// while the current session has never been used. The old session's
// deletion is fire-and-forget: a failure is logged and never blocks
// creating the replacement.
func (c *ChatService) NewChat(ctx context.Context) error {
	c.mu.Lock()
	current := c.sessions.CurrentSessionID()
	if !c.hasUsedSession && current != "" {
		c.mu.Unlock()
		return ErrSessionUnused
	}
	if c.sessionLoading {
		c.mu.Unlock()
		return ErrDispatchInFlight
	}
	c.sessionLoading = true
	c.mu.Unlock()

	if current != "" {
		if err := c.backend.DeleteSession(ctx, current); err != nil {
			c.log.Warn("chat", "optional old session delete failed", map[string]interface{}{
				"session_id": current,
				"error":      err.Error(),
			})
		}
	}

	_, err := c.sessions.CreateNewSession(ctx)

	c.mu.Lock()
	c.sessionLoading = false
	if err == nil {
		c.messages = nil
		c.hasUsedSession = false
	}
	c.mu.Unlock()

	return err
}

// SwitchSession moves the current pointer and replaces the visible
// message sequence with the target session's cached history (or an
// empty one). Usage tracking restarts per switch.
func (c *ChatService) SwitchSession(sessionId string) {
	c.sessions.SetCurrentSessionID(sessionId)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.sessions.CachedHistory(sessionId); ok {
		c.messages = cached
		c.hasUsedSession = len(cached) > 0
	} else {
		c.messages = nil
		c.hasUsedSession = false
	}
}

func (c *ChatService) Messages() []dto.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dto.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *ChatService) HasUsedSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasUsedSession
}

func (c *ChatService) IsDispatching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatching
}

// SubmitFeedback posts user feedback with the stored user id and the
// current session id, falling back to the zero UUID when none exists.
func (c *ChatService) SubmitFeedback(ctx context.Context, feedback string) error {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return ErrEmptyMessage
	}

	var userId int64
	if cred := c.creds.Current(); cred != nil {
		userId = cred.User.Id
	}
	sessionId := c.sessions.CurrentSessionID()
	if sessionId == "" {
		sessionId = uuid.Nil.String()
	}

	req := &dto.FeedbackRequest{
		UserId:    userId,
		SessionId: sessionId,
		Feedback:  feedback,
	}
	if err := c.backend.SubmitFeedback(ctx, req); err != nil {
		c.log.Error("chat", "feedback submission failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}

// Reset drops all chat-scoped state. Called on logout; acts as a full
// remount, so the bootstrap latch re-arms too.
func (c *ChatService) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.dispatching = false
	c.sessionLoading = false
	c.hasUsedSession = false
	c.bootstrap = BootstrapIdle
}
