package webrtc

import (
	"fmt"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/config"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

// Config selects the ICE servers and policy for new peers.
type Config struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	Trickle     bool

	// GatherTimeout bounds how long a description waits for candidates.
	GatherTimeout time.Duration

	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host links.
	IncludeLoopback bool
}

// ConfigFrom maps client configuration to peer configuration.
func ConfigFrom(c *config.Client) Config {
	return Config{
		STUNServers: c.STUNServers,
		TURNServers: c.TURNServers(),
		TURNUser:    c.TURNUser,
		TURNPass:    c.TURNPass,
		ForceRelay:  c.ForceRelay,
		Trickle:     c.Trickle,
	}
}

// Configuration builds the pion configuration. Relay-only policy applies
// when a TURN server is configured and either forced or the host looks
// like it sits behind a VPN or carrier NAT.
func (c Config) Configuration() pion.Configuration {
	var servers []pion.ICEServer
	if len(c.STUNServers) > 0 {
		servers = append(servers, pion.ICEServer{URLs: c.STUNServers})
	}
	if len(c.TURNServers) > 0 {
		servers = append(servers, pion.ICEServer{
			URLs:       c.TURNServers,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}

	policy := pion.ICETransportPolicyAll
	if len(c.TURNServers) > 0 && (c.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

// Factory creates WebRTC peers. It implements transport.Factory.
type Factory struct {
	cfg Config
	api *pion.API
}

// NewFactory creates a Factory for cfg.
func NewFactory(cfg Config) *Factory {
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = GatherTimeout
	}

	var se pion.SettingEngine
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	return &Factory{
		cfg: cfg,
		api: pion.NewAPI(pion.WithSettingEngine(se)),
	}
}

// NewChannel implements transport.Factory.
func (f *Factory) NewChannel(isInitiator bool, h transport.Handlers) (transport.Channel, error) {
	pc, err := f.api.NewPeerConnection(f.cfg.Configuration())
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := newPeer(pc, isInitiator, h, f.cfg)
	if isInitiator {
		if err := p.start(); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	return p, nil
}
