//go:build !mediadevices

package rtc

import (
	"log/slog"

	"github.com/mossy-p/webrtc-calling/internal/call"
)

// DefaultAudioSource sends silence. Build with -tags mediadevices for
// microphone capture.
func DefaultAudioSource(log *slog.Logger) call.MediaSource {
	log.Info("built without mediadevices, sending silence")
	return SilenceSource{}
}
