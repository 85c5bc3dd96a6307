package playback

import "time"

// Clock abstracts the audio device clock so scheduling decisions can be
// tested deterministically.
type Clock interface {
	Now() time.Time
}

// DeviceClock implements Clock using system time.
type DeviceClock struct{}

func (DeviceClock) Now() time.Time { return time.Now() }
