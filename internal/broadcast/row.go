package broadcast

import (
	"fmt"
	"time"
)

// The remote schema has drifted across iterations: the script column has
// shipped as both "content" and "script", and the audio payload as both
// "audio_base64" and "audio_base_64". Reads accept every known variant and
// fail closed on rows that match none of them; writes always emit the
// current names.
const (
	colID           = "id"
	colClientID     = "client_id"
	colTitle        = "title"
	colScript       = "script"
	colScriptLegacy = "content"
	colPrompt       = "prompt_source"
	colAudio        = "audio_base64"
	colAudioLegacy  = "audio_base_64"
	colImage        = "image_url"
	colMode         = "mode"
	colCreatedAt    = "created_at"
)

// FromRow maps a loosely-shaped remote row into a Broadcast. It returns an
// error when the row is missing an id or carries no recognizable script
// column, so callers can fall back instead of trusting a drifted shape.
func FromRow(row map[string]any) (Broadcast, error) {
	id := stringField(row, colID)
	if id == "" {
		return Broadcast{}, fmt.Errorf("broadcast row missing id")
	}

	script, ok := firstString(row, colScript, colScriptLegacy)
	if !ok {
		return Broadcast{}, fmt.Errorf("broadcast row %s has no script column (tried %q, %q)", id, colScript, colScriptLegacy)
	}

	audio, _ := firstString(row, colAudio, colAudioLegacy)

	b := Broadcast{
		ID:           id,
		ClientID:     stringField(row, colClientID),
		Title:        stringField(row, colTitle),
		Script:       script,
		PromptSource: stringField(row, colPrompt),
		AudioData:    audio,
		ImageURL:     stringField(row, colImage),
		Mode:         Mode(stringField(row, colMode)),
		CreatedAt:    timeField(row, colCreatedAt),
	}
	if !b.Mode.Valid() {
		b.Mode = ModeCreative
	}
	return b, nil
}

// ToRow maps a Broadcast onto the current remote column names.
func (b Broadcast) ToRow() map[string]any {
	return map[string]any{
		colID:        b.ID,
		colClientID:  b.ClientID,
		colTitle:     b.Title,
		colScript:    b.Script,
		colPrompt:    b.PromptSource,
		colAudio:     b.AudioData,
		colImage:     b.ImageURL,
		colMode:      string(b.Mode),
		colCreatedAt: b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func stringField(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func firstString(row map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := row[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func timeField(row map[string]any, key string) time.Time {
	switch v := row[key].(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	case float64:
		// Epoch milliseconds, seen from older backend iterations.
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Time{}
}
