package broadcast

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the closed set of generation modes governing how the content
// generator interprets a prompt.
type Mode string

const (
	// ModeCreative lets the generator riff on the prompt.
	ModeCreative Mode = "creative"
	// ModeManual treats the prompt as literal script text.
	ModeManual Mode = "manual"
)

// Valid reports whether m is a known generation mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeCreative, ModeManual:
		return true
	}
	return false
}

// Broadcast is one generated audio+metadata unit distributed to listeners.
// Records are immutable once created.
type Broadcast struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	Title        string    `json:"title"`
	Script       string    `json:"script"`
	PromptSource string    `json:"prompt_source"`
	AudioData    string    `json:"audio_data"` // base64 mono 16-bit PCM at 24kHz; empty if generation failed
	ImageURL     string    `json:"image_url"`
	Mode         Mode      `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
}

// New assembles a broadcast with a fresh ID and creation timestamp.
func New(clientID, title, script, promptSource, audioData, imageURL string, mode Mode) Broadcast {
	return Broadcast{
		ID:           uuid.New().String(),
		ClientID:     clientID,
		Title:        title,
		Script:       script,
		PromptSource: promptSource,
		AudioData:    audioData,
		ImageURL:     imageURL,
		Mode:         mode,
		CreatedAt:    time.Now().UTC(),
	}
}

// HasAudio reports whether the record carries a playable payload.
func (b Broadcast) HasAudio() bool {
	return b.AudioData != ""
}
