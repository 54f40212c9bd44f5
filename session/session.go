package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"studybuddy/store"
	"studybuddy/types"
	"studybuddy/voice"

	"github.com/google/uuid"
)

// State is the lifecycle position of one session.
type State string

const (
	// StateAnonymous: no identity yet.
	StateAnonymous State = "anonymous"
	// StateMaterialsPending: identity known, no index built.
	StateMaterialsPending State = "materials_pending"
	// StateReady: index built, awaiting a question.
	StateReady State = "ready"
	// StateAnswering: a question is in flight.
	StateAnswering State = "answering"
)

var (
	ErrNotFound      = errors.New("session: not found")
	ErrBusy          = errors.New("session: another action is in flight")
	ErrBadTransition = errors.New("session: action not allowed in current state")
)

// Session is the aggregate root of one user's interaction: identity,
// history, index and preferences. It is mutated only through Manager
// transitions, never shared between users, and fully discarded with
// its owner.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	// guards state and all fields below; also provides single-flight:
	// a second action while one runs is rejected, not queued.
	mu sync.Mutex

	state    State
	userName string
	history  []types.ConversationTurn

	index    store.VectorStorer // nil while no materials are indexed
	summary  types.CorpusSummary
	docNames []string

	// presentation preferences, carried but never interpreted here
	voiceID   string
	theme     string
	character string
}

func newSession() *Session {
	return &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		state:     StateAnonymous,
		voiceID:   voice.DefaultVoiceID,
	}
}

// tryLock reserves the session for one action.
func (s *Session) tryLock() error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	return nil
}

func (s *Session) appendTurn(role types.Role, content string) {
	s.history = append(s.history, types.ConversationTurn{
		Role:      role,
		Content:   content,
		Ordinal:   len(s.history),
		CreatedAt: time.Now(),
	})
}

// Snapshot renders the session for the API without exposing internals.
func (s *Session) Snapshot() types.SessionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.SessionResponse{
		ID:        s.ID.String(),
		State:     string(s.state),
		UserName:  s.userName,
		Documents: append([]string(nil), s.docNames...),
		Summary:   s.summary.Sample,
		VoiceID:   s.voiceID,
		CreatedAt: s.CreatedAt,
	}
}

func badTransition(got State, action string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrBadTransition, action, got)
}
