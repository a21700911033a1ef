//go:build mediadevices

package rtc

import (
	"log/slog"

	"github.com/mossy-p/webrtc-calling/internal/call"
)

// DefaultAudioSource captures the real microphone.
func DefaultAudioSource(log *slog.Logger) call.MediaSource {
	return NewMicrophoneSource(log)
}
