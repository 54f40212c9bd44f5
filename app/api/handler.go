package api

import (
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"
	"unicode/utf8"

	"studybuddy/ingest"
	"studybuddy/session"
	"studybuddy/types"
	"studybuddy/voice"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const maxUploadFiles = 16

type SessionHandler struct {
	manager    *session.Manager
	speaker    *voice.Speaker
	recognizer *voice.Recognizer
	logger     *slog.Logger
}

// NewSessionHandler wires the conversation endpoints. recognizer may be
// nil when speech-to-text credentials are not configured; the voice ask
// endpoint then reports the feature as unavailable.
func NewSessionHandler(manager *session.Manager, speaker *voice.Speaker, recognizer *voice.Recognizer) *SessionHandler {
	return &SessionHandler{
		manager:    manager,
		speaker:    speaker,
		recognizer: recognizer,
		logger:     slog.Default().With("component", "api"),
	}
}

func (h *SessionHandler) HandleCreateSession(c *fiber.Ctx) error {
	s := h.manager.Create()
	return c.Status(fiber.StatusCreated).JSON(s.Snapshot())
}

func (h *SessionHandler) HandleGetSession(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	s, err := h.manager.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(s.Snapshot())
}

func (h *SessionHandler) HandleSetName(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	var params types.NameParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if err := h.manager.SetName(id, params.Name); err != nil {
		return err
	}
	return h.snapshot(c, id)
}

func (h *SessionHandler) HandleUploadDocuments(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return ErrBadRequest()
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return NewError(fiber.StatusBadRequest, "no files provided")
	}
	if len(headers) > maxUploadFiles {
		return NewError(fiber.StatusBadRequest, "too many files in one upload")
	}

	files, err := readUploads(headers)
	if err != nil {
		return err
	}

	resp, err := h.manager.UploadMaterials(c.Context(), id, files)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *SessionHandler) HandleAsk(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	var params types.AskParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	return h.answer(c, id, params.Question, "", params.Speak)
}

// HandleAskVoice accepts an audio recording, transcribes it and answers
// the transcript. The reply always carries synthesized audio.
func (h *SessionHandler) HandleAskVoice(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if h.recognizer == nil {
		return NewError(fiber.StatusNotImplemented, "voice input is not configured on this server")
	}

	header, err := c.FormFile("audio")
	if err != nil {
		return NewError(fiber.StatusBadRequest, "no audio provided")
	}
	audio, err := readUpload(header)
	if err != nil {
		return err
	}

	transcript, err := h.recognizer.Recognize(c.Context(), audio.Data, header.Header.Get("Content-Type"))
	if err != nil {
		return err
	}

	return h.answer(c, id, transcript, transcript, true)
}

func (h *SessionHandler) answer(c *fiber.Ctx, id uuid.UUID, question, heard string, speak bool) error {
	answer, hits, err := h.manager.Ask(c.Context(), id, question)
	if err != nil {
		return err
	}

	resp := types.AskResponse{
		Answer:    answer,
		Sources:   toSources(hits),
		Heard:     heard,
		Timestamp: time.Now().UTC(),
	}

	if speak && h.speaker != nil {
		voiceID, userName, err := h.manager.VoiceProfile(id)
		if err != nil {
			return err
		}
		audio, err := h.speaker.Speak(c.Context(), answer, voiceID, userName)
		if err != nil {
			// the text answer is already committed, return it without audio
			h.logger.Warn("speech synthesis failed", "id", id, "error", err)
		} else {
			resp.Audio = audio
		}
	}

	return c.JSON(resp)
}

func toSources(hits []types.ScoredChunk) []types.Source {
	sources := make([]types.Source, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, types.Source{
			Document: hit.Chunk.DocName,
			Page:     hit.Chunk.Page,
			Text:     snippet(hit.Chunk.Content, 200),
			Score:    hit.Score,
		})
	}
	return sources
}

func snippet(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return strings.TrimSpace(text[:cut]) + "..."
}

func (h *SessionHandler) HandleGetHistory(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	turns, err := h.manager.History(id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"turns": turns})
}

func (h *SessionHandler) HandleSetVoice(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	var params types.VoiceParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	if !knownVoice(params.VoiceID) {
		return NewError(fiber.StatusBadRequest, "unknown voice")
	}

	if err := h.manager.SetVoice(id, params.VoiceID); err != nil {
		return err
	}
	return h.snapshot(c, id)
}

func (h *SessionHandler) HandleListVoices(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"voices": voice.Voices, "default": voice.DefaultVoiceID})
}

func (h *SessionHandler) HandleReset(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.manager.Reset(c.Context(), id); err != nil {
		return err
	}
	h.logger.Info("session reset", "id", id)
	return h.snapshot(c, id)
}

func (h *SessionHandler) snapshot(c *fiber.Ctx, id uuid.UUID) error {
	s, err := h.manager.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(s.Snapshot())
}

func knownVoice(id string) bool {
	for _, v := range voice.Voices {
		if v == id {
			return true
		}
	}
	return false
}

func sessionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, ErrInvalidID()
	}
	return id, nil
}

func readUploads(headers []*multipart.FileHeader) ([]ingest.File, error) {
	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		file, err := readUpload(header)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func readUpload(header *multipart.FileHeader) (ingest.File, error) {
	src, err := header.Open()
	if err != nil {
		return ingest.File{}, NewError(fiber.StatusBadRequest, "could not read uploaded file")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return ingest.File{}, NewError(fiber.StatusBadRequest, "could not read uploaded file")
	}
	return ingest.File{Name: header.Filename, Data: data}, nil
}
