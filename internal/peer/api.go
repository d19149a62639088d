package peer

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/config"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/logging"
)

// NewAPI builds a pion API with the default codecs (VP8, Opus among them),
// the default interceptors (NACK, RTCP reports, TWCC) and pion logging
// routed into zap.
func NewAPI(logger *zap.Logger) (*webrtc.API, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: logging.PionFactory{Logger: logger}}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(s),
	), nil
}

// Options configure every Link created for a session.
type Options struct {
	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Policy     webrtc.ICETransportPolicy
	Logger     *zap.Logger
}

// OptionsFromConfig uses the configured STUN server plus the TURN relay as
// fallback. Relay-only policy applies when forced, or when this host looks
// like it sits behind a VPN or CGNAT.
func OptionsFromConfig(cfg *config.Config, api *webrtc.API, logger *zap.Logger) Options {
	servers := []webrtc.ICEServer{}
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		user, pass := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turn != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return Options{
		API:        api,
		ICEServers: servers,
		Policy:     policy,
		Logger:     logger,
	}
}
