package api

import (
	"errors"
	"log/slog"

	"studybuddy/ingest"
	"studybuddy/session"
	"studybuddy/voice"

	"github.com/gofiber/fiber/v2"
)

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Retry   bool   `json:"retry,omitempty"`
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{Code: code, Message: err}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

func ErrBadRequest() Error {
	return Error{Code: fiber.StatusBadRequest, Message: "invalid request"}
}

func ErrInvalidID() Error {
	return Error{Code: fiber.StatusBadRequest, Message: "invalid session id given"}
}

// ErrorHandler translates domain errors into plain-language JSON
// responses. No error here is fatal to the process; per-turn failures
// are flagged retryable so the frontend can offer a retry.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiErr, ok := err.(Error); ok {
		return c.Status(apiErr.Code).JSON(apiErr)
	}
	if valErr, ok := err.(ValidationError); ok {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var resp Error
	switch {
	case errors.Is(err, session.ErrNotFound):
		resp = Error{Code: fiber.StatusNotFound, Message: "session not found"}
	case errors.Is(err, session.ErrBusy):
		resp = Error{Code: fiber.StatusConflict, Message: "another action is already in progress, please wait"}
	case errors.Is(err, session.ErrBadTransition):
		resp = Error{Code: fiber.StatusConflict, Message: err.Error()}
	case errors.Is(err, ingest.ErrNoContent):
		resp = Error{
			Code:    fiber.StatusUnprocessableEntity,
			Message: "could not extract any content from the uploaded documents, please check the files and try again",
			Retry:   true,
		}
	case errors.Is(err, voice.ErrNoSpeech):
		resp = Error{Code: fiber.StatusUnprocessableEntity, Message: "sorry, I couldn't understand what you said", Retry: true}
	case errors.Is(err, voice.ErrRecognition):
		resp = Error{Code: fiber.StatusServiceUnavailable, Message: "could not reach the speech recognition service", Retry: true}
	case errors.Is(err, voice.ErrSynthesis):
		resp = Error{Code: fiber.StatusBadGateway, Message: "could not synthesize speech right now", Retry: true}
	default:
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			resp = Error{Code: fiberErr.Code, Message: fiberErr.Message}
		} else {
			// external model calls and index builds land here
			resp = Error{Code: fiber.StatusBadGateway, Message: err.Error(), Retry: true}
		}
	}

	slog.Error("request failed", "code", resp.Code, "error", err)
	return c.Status(resp.Code).JSON(resp)
}
