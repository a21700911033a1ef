//go:build mediadevices

package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mossy-p/webrtc-calling/internal/call"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"
)

// MicrophoneSource captures the default microphone through
// pion/mediadevices and encodes it as Opus.
type MicrophoneSource struct {
	log *slog.Logger
}

func NewMicrophoneSource(log *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{log: log}
}

func (m *MicrophoneSource) AcquireAudio(ctx context.Context) (call.LocalMedia, error) {
	const op = "rtc.microphone.acquire"
	log := m.log.With(slog.String("op", op))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := 0
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.AudioInput {
			log.Debug("audio input", slog.String("label", d.Label))
			inputs++
		}
	}
	if inputs == 0 {
		return nil, call.ErrNoDevice
	}

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	codecSelector := mediadevices.NewCodecSelector(mediadevices.WithAudioEncoders(&opusParams))

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(*mediadevices.MediaTrackConstraints) {},
		Codec: codecSelector,
	})
	if err != nil {
		return nil, classifyCapture(err)
	}

	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, call.ErrNoDevice
	}
	for _, extra := range tracks[1:] {
		extra.Close()
	}

	tracks[0].OnEnded(func(err error) {
		if err != nil {
			log.Warn("microphone track ended", slog.String("error", err.Error()))
		}
	})
	return &micTrack{track: tracks[0]}, nil
}

func classifyCapture(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %w", call.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", call.ErrDeviceBusy, err)
}

type micTrack struct {
	track mediadevices.Track
	once  sync.Once
}

func (t *micTrack) Track() webrtc.TrackLocal {
	return t.track
}

func (t *micTrack) Stop() {
	t.once.Do(func() {
		t.track.Close()
	})
}
