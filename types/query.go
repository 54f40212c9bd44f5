package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// NameParams sets the session's user identity.
type NameParams struct {
	Name string `json:"name" validate:"required"`
}

// AskParams is a text question for the answerer. Speak requests a
// spoken rendition of the answer in the response.
type AskParams struct {
	Question string `json:"question" validate:"required"`
	Speak    bool   `json:"speak"`
}

// VoiceParams selects the tutor voice used for speech synthesis.
type VoiceParams struct {
	VoiceID string `json:"voice_id" validate:"required"`
}

func (params *NameParams) Validate() map[string]string  { return validateStruct(params) }
func (params *AskParams) Validate() map[string]string   { return validateStruct(params) }
func (params *VoiceParams) Validate() map[string]string { return validateStruct(params) }

func validateStruct(v any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(v); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// SessionResponse is the session snapshot returned by the API.
type SessionResponse struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	UserName  string    `json:"user_name,omitempty"`
	Documents []string  `json:"documents,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	VoiceID   string    `json:"voice_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AskResponse carries the generated answer, its sources and the
// optional synthesized audio.
type AskResponse struct {
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources,omitempty"`
	Audio     []byte    `json:"audio,omitempty"` // mp3, base64 in JSON
	Heard     string    `json:"heard,omitempty"` // recognized text on the voice path
	Timestamp time.Time `json:"timestamp"`
}

type Source struct {
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// UploadResponse reports the outcome of a materials upload.
type UploadResponse struct {
	Documents []string `json:"documents"`
	Pages     int      `json:"pages"`
	Chunks    int      `json:"chunks"`
	Skipped   []string `json:"skipped,omitempty"` // files that failed to parse
	Greeting  string   `json:"greeting"`
}
