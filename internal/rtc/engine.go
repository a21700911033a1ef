// Package rtc adapts pion/webrtc to the call package's media transport
// interfaces.
package rtc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossy-p/webrtc-calling/config"
	"github.com/mossy-p/webrtc-calling/internal/call"
	"github.com/pion/interceptor"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

// ICE timeouts are generous so a short network hiccup does not end the call.
const (
	iceDisconnectedTimeout = 30 * time.Second
	iceFailedTimeout       = 120 * time.Second
	iceKeepaliveInterval   = 2 * time.Second
)

// OpusCodec is the only codec the engine negotiates.
var OpusCodec = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   48000,
	Channels:    2,
	SDPFmtpLine: "minptime=10;useinbandfec=1",
}

// Engine builds audio-only peer connections. It implements
// call.ConnectionFactory.
type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    *slog.Logger
}

type options struct {
	net transport.Net
}

type Option func(*options)

// WithNet runs ICE over n instead of the host network.
func WithNet(n transport.Net) Option {
	return func(o *options) { o.net = n }
}

func NewEngine(cfg config.WebRTCConfig, log *slog.Logger, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: OpusCodec,
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(log)}
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepaliveInterval)
	if o.net != nil {
		se.SetNet(o.net)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	return &Engine{
		api:    api,
		config: webrtc.Configuration{ICEServers: iceServers(cfg)},
		log:    log,
	}, nil
}

// iceServers lists the configured STUN servers plus TURN when a URL is set.
func iceServers(cfg config.WebRTCConfig) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	if cfg.TURNURL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNURL},
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNCredential,
		})
	}
	return servers
}

func (e *Engine) NewConnection(ctx context.Context) (call.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newConnection(pc, e.log), nil
}
