package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"studybuddy/app/agent"
	"studybuddy/chunker"
	"studybuddy/ingest"
	"studybuddy/model"
	"studybuddy/store"
	"studybuddy/types"

	"github.com/google/uuid"
)

// Answerer is the retrieval-augmented generation step the manager
// delegates each question to.
type Answerer interface {
	Answer(ctx context.Context, question string, index store.VectorStorer, profile agent.Profile) (string, []types.ScoredChunk, error)
}

// Manager owns every live session and is the only writer of their
// state. Each user action is one synchronous call; a second action on
// the same session while one runs fails with ErrBusy.
type Manager struct {
	loader       *ingest.Loader
	splitter     *chunker.Splitter
	embedder     model.Embedder
	answerer     Answerer
	storeFactory store.Factory
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewManager(loader *ingest.Loader, splitter *chunker.Splitter, embedder model.Embedder, answerer Answerer, factory store.Factory) *Manager {
	return &Manager{
		loader:       loader,
		splitter:     splitter,
		embedder:     embedder,
		answerer:     answerer,
		storeFactory: factory,
		logger:       slog.Default(),
		sessions:     make(map[uuid.UUID]*Session),
	}
}

// Create starts a fresh anonymous session.
func (m *Manager) Create() *Session {
	s := newSession()
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Info("session created", "session", s.ID)
	return s
}

func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// SetName establishes the user identity: Anonymous → MaterialsPending.
func (m *Manager) SetName(id uuid.UUID, name string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.tryLock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrBadTransition)
	}
	if s.state != StateAnonymous {
		return badTransition(s.state, "set name")
	}
	s.userName = name
	s.state = StateMaterialsPending
	return nil
}

// UploadMaterials runs the ingest → chunk → index pipeline and moves
// the session to Ready. Allowed from MaterialsPending and from Ready
// (re-upload rebuilds the index wholesale). Any pipeline failure leaves
// the previous state and index untouched.
func (m *Manager) UploadMaterials(ctx context.Context, id uuid.UUID, files []ingest.File) (*types.UploadResponse, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.tryLock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if s.state != StateMaterialsPending && s.state != StateReady {
		return nil, badTransition(s.state, "upload materials")
	}
	if len(files) == 0 {
		return nil, ingest.ErrNoContent
	}

	res, err := m.loader.Ingest(ctx, files)
	if err != nil {
		return nil, err
	}

	chunks := m.splitter.Split(res.Pages)
	if len(chunks) == 0 {
		return nil, ingest.ErrNoContent
	}

	index, err := m.buildIndex(ctx, s.ID, chunks)
	if err != nil {
		return nil, err
	}

	s.index = index
	s.summary = res.Summary
	s.docNames = res.Summary.DocumentNames
	s.state = StateReady

	greeting := fmt.Sprintf(
		"Hello %s! I'm your AI tutor. I've processed your learning materials: %s. "+
			"I have full access to the content and I'm ready to help you understand the material better. "+
			"What would you like to learn about today?",
		s.userName, strings.Join(s.docNames, ", "))
	s.appendTurn(types.RoleAssistant, greeting)

	m.logger.Info("materials indexed",
		"session", s.ID,
		"documents", len(res.Documents),
		"pages", len(res.Pages),
		"chunks", len(chunks),
		"skipped", len(res.Skipped))

	return &types.UploadResponse{
		Documents: s.docNames,
		Pages:     len(res.Pages),
		Chunks:    len(chunks),
		Skipped:   res.Skipped,
		Greeting:  greeting,
	}, nil
}

// buildIndex embeds every chunk and fills a fresh index. All or
// nothing: a single embedding failure aborts the build and no index is
// produced, because a partial index silently degrades answers.
func (m *Manager) buildIndex(ctx context.Context, sessionID uuid.UUID, chunks []types.Chunk) (store.VectorStorer, error) {
	for i := range chunks {
		vec, err := m.embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			return nil, fmt.Errorf("index build: embed chunk %d: %w", chunks[i].Index, err)
		}
		chunks[i].Embedding = vec
	}

	index := m.storeFactory(sessionID)
	if err := index.Reset(ctx); err != nil {
		return nil, fmt.Errorf("index build: reset: %w", err)
	}
	if err := index.Add(ctx, chunks); err != nil {
		return nil, fmt.Errorf("index build: insert: %w", err)
	}
	return index, nil
}

// Ask answers one question: Ready → Answering → Ready. On success both
// the user and assistant turns are appended; on failure only the user
// turn stays, so the user can see what they asked and retry.
func (m *Manager) Ask(ctx context.Context, id uuid.UUID, question string) (string, []types.ScoredChunk, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", nil, err
	}
	if err := s.tryLock(); err != nil {
		return "", nil, err
	}
	defer s.mu.Unlock()

	if s.state != StateReady {
		return "", nil, badTransition(s.state, "ask")
	}

	s.state = StateAnswering
	defer func() { s.state = StateReady }()

	s.appendTurn(types.RoleUser, question)

	answer, hits, err := m.answerer.Answer(ctx, question, s.index, agent.Profile{
		UserName: s.userName,
		Summary:  s.summary,
	})
	if err != nil {
		return "", nil, err
	}

	s.appendTurn(types.RoleAssistant, answer)
	return answer, hits, nil
}

// Reset clears materials and conversation but keeps the user's
// identity and preferences: Ready → MaterialsPending.
func (m *Manager) Reset(ctx context.Context, id uuid.UUID) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.tryLock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.state != StateReady {
		return badTransition(s.state, "reset")
	}

	if s.index != nil {
		if err := s.index.Reset(ctx); err != nil {
			return fmt.Errorf("session reset: %w", err)
		}
	}
	s.index = nil
	s.history = nil
	s.docNames = nil
	s.summary = types.CorpusSummary{}
	s.state = StateMaterialsPending
	m.logger.Info("session reset", "session", s.ID, "user", s.userName)
	return nil
}

// History returns a copy of the conversation so far.
func (m *Manager) History(id uuid.UUID) ([]types.ConversationTurn, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ConversationTurn(nil), s.history...), nil
}

// SetVoice stores the tutor voice preference; allowed in any state
// once the session exists.
func (m *Manager) SetVoice(id uuid.UUID, voiceID string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceID = voiceID
	return nil
}

// VoiceProfile returns what speech synthesis needs: the selected voice
// and the name used for personalized interjections.
func (m *Manager) VoiceProfile(id uuid.UUID) (voiceID, userName string, err error) {
	s, err := m.Get(id)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceID, s.userName, nil
}
