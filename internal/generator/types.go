package generator

import (
	"context"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
)

// Bundle is the content generator's output for one prompt: everything
// needed to assemble a broadcast. AudioData may be empty when audio
// generation failed but the script survived.
type Bundle struct {
	Title     string         `json:"title"`
	Script    string         `json:"script"`
	AudioData string         `json:"audio_base64"` // base64 mono 16-bit PCM at 24kHz
	ImageURL  string         `json:"image_url"`
	Mode      broadcast.Mode `json:"mode"`
	CreatedAt time.Time      `json:"created_at"`
}

// Client produces a content bundle from a prompt. The generator is an
// external collaborator; failures surface to the producer flow verbatim
// and nothing is persisted on error.
type Client interface {
	Generate(ctx context.Context, prompt string, mode broadcast.Mode) (*Bundle, error)
}
