package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"bitcoin-gpt-client/internal/api"
	"bitcoin-gpt-client/internal/dto"
	"bitcoin-gpt-client/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
)

// SessionService owns the ordered session collection and the current
// session pointer. All mutation of either goes through this registry.
type SessionService struct {
	backend *api.Client
	log     logger.ILogger

	mu               sync.Mutex
	sessions         []dto.Session
	currentSessionId string

	// Message history per session id, so switching back to a recently
	// viewed session does not refetch.
	history *cache.Cache
}

func NewSessionService(backend *api.Client, log logger.ILogger) *SessionService {
	return &SessionService{
		backend: backend,
		log:     log,
		history: cache.New(1*time.Hour, 10*time.Minute),
	}
}

// FetchSessions replaces the collection wholesale. The current session
// pointer is left untouched.
func (s *SessionService) FetchSessions(ctx context.Context) error {
	sessions, err := s.backend.ListSessions(ctx)
	if err != nil {
		s.log.Error("session", "failed to fetch sessions", map[string]interface{}{"error": err.Error()})
		return err
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
	return nil
}

// CreateNewSession requests a session from the backend, appends it and
// makes it current. Safe to call while a current session exists.
func (s *SessionService) CreateNewSession(ctx context.Context) (string, error) {
	id, err := s.backend.CreateSession(ctx)
	if err != nil {
		s.log.Error("session", "failed to create session", map[string]interface{}{"error": err.Error()})
		return "", err
	}

	s.mu.Lock()
	s.sessions = append(s.sessions, dto.Session{SessionId: id})
	s.currentSessionId = id
	s.mu.Unlock()

	s.log.Info("session", "session created", map[string]interface{}{"session_id": id})
	return id, nil
}

// DeleteSession removes the session. The backend call is best-effort:
// a failure is logged, never surfaced, and the local removal proceeds.
// If the deleted session was current, the pointer is cleared and the
// caller picks a replacement; the registry never auto-selects.
func (s *SessionService) DeleteSession(ctx context.Context, sessionId string) {
	if err := s.backend.DeleteSession(ctx, sessionId); err != nil {
		s.log.Warn("session", "backend session delete failed", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
	}

	s.mu.Lock()
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.SessionId != sessionId {
			kept = append(kept, sess)
		}
	}
	s.sessions = kept
	if s.currentSessionId == sessionId {
		s.currentSessionId = ""
	}
	s.mu.Unlock()

	s.history.Delete(sessionId)
}

// RenameSession updates a title in place without changing ordering.
// Empty or whitespace-only titles are a no-op.
func (s *SessionService) RenameSession(ctx context.Context, sessionId, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	if err := s.backend.RenameSession(ctx, sessionId, title); err != nil {
		s.log.Error("session", "failed to rename session", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		return err
	}

	s.mu.Lock()
	for i := range s.sessions {
		if s.sessions[i].SessionId == sessionId {
			s.sessions[i].Title = title
			break
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *SessionService) Sessions() []dto.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dto.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// FilterSessions returns sessions whose title contains query,
// case-insensitively. Untitled sessions are excluded from filtering
// (the presentation still renders them with a placeholder label).
func (s *SessionService) FilterSessions(query string) []dto.Session {
	all := s.Sessions()
	if strings.TrimSpace(query) == "" {
		return all
	}

	q := strings.ToLower(query)
	var matched []dto.Session
	for _, sess := range all {
		if sess.Title == "" {
			continue
		}
		if strings.Contains(strings.ToLower(sess.Title), q) {
			matched = append(matched, sess)
		}
	}
	return matched
}

func (s *SessionService) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSessionId
}

func (s *SessionService) SetCurrentSessionID(sessionId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentSessionId = sessionId
}

// CacheHistory remembers the message history for a session.
func (s *SessionService) CacheHistory(sessionId string, messages []dto.Message) {
	copied := make([]dto.Message, len(messages))
	copy(copied, messages)
	s.history.Set(sessionId, copied, cache.DefaultExpiration)
}

// CachedHistory returns the remembered history for a session, if any.
func (s *SessionService) CachedHistory(sessionId string) ([]dto.Message, bool) {
	if x, found := s.history.Get(sessionId); found {
		return x.([]dto.Message), true
	}
	return nil, false
}

// Reset drops everything session-scoped. Called on logout.
func (s *SessionService) Reset() {
	s.mu.Lock()
	s.sessions = nil
	s.currentSessionId = ""
	s.mu.Unlock()
	s.history.Flush()
}
