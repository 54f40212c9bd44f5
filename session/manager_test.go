package session

import (
	"context"
	"errors"
	"testing"

	"studybuddy/app/agent"
	"studybuddy/chunker"
	"studybuddy/ingest"
	"studybuddy/store"
	"studybuddy/types"
	"studybuddy/voice"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	// cheap deterministic unit vector keyed on the first byte
	if len(text) == 0 {
		return []float32{1, 0}, nil
	}
	switch text[0] % 2 {
	case 0:
		return []float32{1, 0}, nil
	default:
		return []float32{0, 1}, nil
	}
}

type stubAnswerer struct {
	answer string
	err    error

	gotQuestion string
	gotProfile  agent.Profile
	gotIndexLen int
}

func (s *stubAnswerer) Answer(_ context.Context, question string, index store.VectorStorer, profile agent.Profile) (string, []types.ScoredChunk, error) {
	s.gotQuestion = question
	s.gotProfile = profile
	if index != nil {
		s.gotIndexLen = index.Len()
	}
	if s.err != nil {
		return "", nil, s.err
	}
	return s.answer, nil, nil
}

func newTestManager(t *testing.T, embedder *stubEmbedder, answerer *stubAnswerer) *Manager {
	t.Helper()
	splitter, err := chunker.New(1000, 200)
	require.NoError(t, err)
	factory := func(uuid.UUID) store.VectorStorer { return store.NewMemoryStore() }
	return NewManager(ingest.NewLoader(nil), splitter, embedder, answerer, factory)
}

func textFile(name, content string) ingest.File {
	return ingest.File{Name: name, Data: []byte(content)}
}

func TestFullSessionFlow(t *testing.T) {
	ctx := context.Background()
	answerer := &stubAnswerer{answer: "So, the cell membrane controls what enters."}
	m := newTestManager(t, &stubEmbedder{}, answerer)

	s := m.Create()
	assert.Equal(t, StateAnonymous, s.state)
	assert.Equal(t, voice.DefaultVoiceID, s.voiceID)

	require.NoError(t, m.SetName(s.ID, "Dana"))
	assert.Equal(t, StateMaterialsPending, s.state)
	assert.Equal(t, "Dana", s.userName)

	up, err := m.UploadMaterials(ctx, s.ID, []ingest.File{
		textFile("cells.txt", "The cell membrane is selectively permeable."),
	})
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.state)
	assert.Equal(t, []string{"cells.txt"}, up.Documents)
	assert.Equal(t, 1, up.Pages)
	assert.Greater(t, up.Chunks, 0)
	assert.Contains(t, up.Greeting, "Hello Dana!")
	assert.Contains(t, up.Greeting, "cells.txt")

	// greeting is the first conversation turn
	history, err := m.History(s.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.RoleAssistant, history[0].Role)

	answer, _, err := m.Ask(ctx, s.ID, "What does the membrane do?")
	require.NoError(t, err)
	assert.Equal(t, answerer.answer, answer)
	assert.Equal(t, StateReady, s.state)
	assert.Equal(t, "What does the membrane do?", answerer.gotQuestion)
	assert.Equal(t, "Dana", answerer.gotProfile.UserName)
	assert.Greater(t, answerer.gotIndexLen, 0)

	history, err = m.History(s.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, types.RoleUser, history[1].Role)
	assert.Equal(t, types.RoleAssistant, history[2].Role)
	for i, turn := range history {
		assert.Equal(t, i, turn.Ordinal)
	}
}

func TestSetNameValidation(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{})
	s := m.Create()

	require.ErrorIs(t, m.SetName(s.ID, "   "), ErrBadTransition)
	assert.Equal(t, StateAnonymous, s.state)

	require.NoError(t, m.SetName(s.ID, "  Dana  "))
	assert.Equal(t, "Dana", s.userName)

	// renaming after the fact is not a thing
	require.ErrorIs(t, m.SetName(s.ID, "Sam"), ErrBadTransition)
	assert.Equal(t, "Dana", s.userName)
}

func TestUploadRequiresIdentity(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{})
	s := m.Create()

	_, err := m.UploadMaterials(context.Background(), s.ID, []ingest.File{textFile("a.txt", "x")})
	require.ErrorIs(t, err, ErrBadTransition)
	assert.Equal(t, StateAnonymous, s.state)
}

func TestUploadEmptyCorpusKeepsState(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{})
	s := m.Create()
	require.NoError(t, m.SetName(s.ID, "Dana"))

	_, err := m.UploadMaterials(ctx, s.ID, nil)
	require.ErrorIs(t, err, ingest.ErrNoContent)
	assert.Equal(t, StateMaterialsPending, s.state)

	_, err = m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("blank.txt", "   ")})
	require.ErrorIs(t, err, ingest.ErrNoContent)
	assert.Equal(t, StateMaterialsPending, s.state)
	assert.Nil(t, s.index)
}

func TestIndexBuildIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{err: errors.New("embedding service down")}
	m := newTestManager(t, embedder, &stubAnswerer{})
	s := m.Create()
	require.NoError(t, m.SetName(s.ID, "Dana"))

	_, err := m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("a.txt", "some content")})
	require.Error(t, err)
	assert.Equal(t, StateMaterialsPending, s.state)
	assert.Nil(t, s.index)

	history, err := m.History(s.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestReuploadReplacesIndexWholesale(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{answer: "ok"})
	s := m.Create()
	require.NoError(t, m.SetName(s.ID, "Dana"))

	_, err := m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("old.txt", "old corpus")})
	require.NoError(t, err)
	oldIndex := s.index

	_, err = m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("new.txt", "new corpus")})
	require.NoError(t, err)
	assert.NotSame(t, oldIndex, s.index)
	assert.Equal(t, []string{"new.txt"}, s.docNames)
}

func TestFailedReuploadKeepsOldIndex(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{}
	m := newTestManager(t, embedder, &stubAnswerer{answer: "ok"})
	s := m.Create()
	require.NoError(t, m.SetName(s.ID, "Dana"))

	_, err := m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("old.txt", "old corpus")})
	require.NoError(t, err)
	oldIndex := s.index

	embedder.err = errors.New("embedding service down")
	_, err = m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("new.txt", "new corpus")})
	require.Error(t, err)
	assert.Same(t, oldIndex, s.index)
	assert.Equal(t, StateReady, s.state)
	assert.Equal(t, []string{"old.txt"}, s.docNames)
}

func TestAskBeforeUploadRejected(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{})
	s := m.Create()
	require.NoError(t, m.SetName(s.ID, "Dana"))

	_, _, err := m.Ask(context.Background(), s.ID, "anything?")
	require.ErrorIs(t, err, ErrBadTransition)
}

func TestFailedAnswerKeepsUserTurn(t *testing.T) {
	ctx := context.Background()
	answerer := &stubAnswerer{answer: "ok"}
	m := newTestManager(t, &stubEmbedder{}, answerer)
	s := m.Create()
	require.NoError(t, m.SetName(s.ID, "Dana"))
	_, err := m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("a.txt", "content")})
	require.NoError(t, err)

	answerer.err = errors.New("model overloaded")
	_, _, err = m.Ask(ctx, s.ID, "doomed question")
	require.Error(t, err)
	assert.Equal(t, StateReady, s.state)

	history, err := m.History(s.ID)
	require.NoError(t, err)
	// greeting plus the user turn; no assistant turn for the failure
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleUser, history[1].Role)
	assert.Equal(t, "doomed question", history[1].Content)
}

func TestResetKeepsIdentityClearsMaterials(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{answer: "ok"})
	s := m.Create()
	require.NoError(t, m.SetName(s.ID, "Dana"))
	require.NoError(t, m.SetVoice(s.ID, "custom-voice"))
	_, err := m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("a.txt", "content")})
	require.NoError(t, err)
	_, _, err = m.Ask(ctx, s.ID, "q")
	require.NoError(t, err)

	require.NoError(t, m.Reset(ctx, s.ID))
	assert.Equal(t, StateMaterialsPending, s.state)
	assert.Equal(t, "Dana", s.userName)
	assert.Equal(t, "custom-voice", s.voiceID)
	assert.Nil(t, s.index)
	assert.Empty(t, s.docNames)
	assert.True(t, s.summary.Empty())

	history, err := m.History(s.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	// the same identity can study a new corpus
	_, err = m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("b.txt", "next topic")})
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.state)
}

func TestResetOnlyFromReady(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{})
	s := m.Create()

	require.ErrorIs(t, m.Reset(context.Background(), s.ID), ErrBadTransition)

	require.NoError(t, m.SetName(s.ID, "Dana"))
	require.ErrorIs(t, m.Reset(context.Background(), s.ID), ErrBadTransition)
}

func TestSingleFlightPerSession(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{})
	s := m.Create()

	// simulate an action in flight
	s.mu.Lock()
	defer s.mu.Unlock()

	require.ErrorIs(t, m.SetName(s.ID, "Dana"), ErrBusy)
	_, err := m.UploadMaterials(context.Background(), s.ID, []ingest.File{textFile("a.txt", "x")})
	require.ErrorIs(t, err, ErrBusy)
	_, _, err = m.Ask(context.Background(), s.ID, "q")
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, m.Reset(context.Background(), s.ID), ErrBusy)
}

func TestUnknownSession(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{})

	_, err := m.Get(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, m.SetName(uuid.New(), "Dana"), ErrNotFound)
	_, _, err = m.Ask(context.Background(), uuid.New(), "q")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{answer: "ok"})

	a := m.Create()
	b := m.Create()
	require.NoError(t, m.SetName(a.ID, "Dana"))
	require.NoError(t, m.SetName(b.ID, "Sam"))

	_, err := m.UploadMaterials(ctx, a.ID, []ingest.File{textFile("dana.txt", "dana's corpus")})
	require.NoError(t, err)

	// b has no materials, its state is untouched by a's upload
	assert.Equal(t, StateMaterialsPending, b.state)
	assert.Nil(t, b.index)
	_, _, err = m.Ask(ctx, b.ID, "q")
	require.ErrorIs(t, err, ErrBadTransition)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &stubEmbedder{}, &stubAnswerer{answer: "ok"})
	s := m.Create()
	require.NoError(t, m.SetName(s.ID, "Dana"))
	_, err := m.UploadMaterials(ctx, s.ID, []ingest.File{textFile("a.txt", "some study content")})
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, s.ID.String(), snap.ID)
	assert.Equal(t, string(StateReady), snap.State)
	assert.Equal(t, "Dana", snap.UserName)
	assert.Equal(t, []string{"a.txt"}, snap.Documents)

	// handed-out slices are copies
	snap.Documents[0] = "mutated"
	assert.Equal(t, []string{"a.txt"}, s.docNames)
}
