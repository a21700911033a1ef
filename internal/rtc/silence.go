package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/webrtc-calling/internal/call"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource stands in for a microphone where no capture driver is built
// in. It always succeeds.
type SilenceSource struct{}

func (SilenceSource) AcquireAudio(ctx context.Context) (call.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(OpusCodec, "audio", "callclient-"+uuid.NewString())
	if err != nil {
		return nil, err
	}

	s := &silenceTrack{track: track, stop: make(chan struct{})}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

type silenceTrack struct {
	track *webrtc.TrackLocalStaticSample
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func (s *silenceTrack) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// Fails harmlessly until the track is bound to a connection.
			_ = s.track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration})
		}
	}
}

func (s *silenceTrack) Track() webrtc.TrackLocal {
	return s.track
}

func (s *silenceTrack) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}
