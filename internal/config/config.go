// Package config loads server and CLI settings with viper.
// Precedence is flag > environment > config file > default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultPort            = 3001
	DefaultCORSOrigin      = "http://localhost:5173"
	DefaultMode            = "release"
	DefaultRoomMaxAge      = 10 * time.Minute
	DefaultSweepInterval   = 60 * time.Second
	DefaultCompletionGrace = 2 * time.Minute

	DefaultServerURL      = "ws://localhost:3001/ws"
	DefaultSTUN           = "stun:stun.l.google.com:19302"
	DefaultPeerTimeout    = 5 * time.Minute
	DefaultConnectTimeout = 30 * time.Second
)

// Server holds signaling server configuration.
type Server struct {
	Port            int           `mapstructure:"port"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
	Mode            string        `mapstructure:"mode"`
	RoomMaxAge      time.Duration `mapstructure:"room_max_age"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	CompletionGrace time.Duration `mapstructure:"completion_grace"`
}

// Addr is the listen address for the HTTP server.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Client holds CLI configuration.
type Client struct {
	// ServerURL is the websocket endpoint of the signaling server.
	ServerURL string `mapstructure:"server"`

	// ICE servers for WebRTC
	STUNServers []string `mapstructure:"stun"`
	TURNServer  string   `mapstructure:"turn"`
	TURNUser    string   `mapstructure:"turn_user"`
	TURNPass    string   `mapstructure:"turn_pass"`
	ForceRelay  bool     `mapstructure:"relay"`

	// Trickle sends ICE candidates as they are found instead of inlining
	// them in the session description.
	Trickle bool `mapstructure:"trickle"`

	PeerTimeout    time.Duration `mapstructure:"peer_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// TURNServers returns TURN server URLs if configured.
func (c *Client) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
	}
}

func newViper(name string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tunneldrop")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	log.Debug().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	return nil
}

// LoadServer reads the signaling server configuration. Environment keys are
// the upper-cased setting names (PORT, CORS_ORIGIN, ROOM_MAX_AGE, ...).
func LoadServer() (*Server, error) {
	v := newViper("tunneldrop-server")

	v.SetDefault("port", DefaultPort)
	v.SetDefault("cors_origin", DefaultCORSOrigin)
	v.SetDefault("mode", DefaultMode)
	v.SetDefault("room_max_age", DefaultRoomMaxAge)
	v.SetDefault("sweep_interval", DefaultSweepInterval)
	v.SetDefault("completion_grace", DefaultCompletionGrace)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return &cfg, nil
}

// Load reads the CLI configuration. Flags in fs override environment
// variables with the TUNNELDROP_ prefix, which override the config file.
// Flag names are matched to keys with dashes read as underscores.
func Load(fs *pflag.FlagSet) (*Client, error) {
	v := newViper("tunneldrop")
	v.SetEnvPrefix("tunneldrop")

	v.SetDefault("server", DefaultServerURL)
	v.SetDefault("stun", []string{DefaultSTUN})
	v.SetDefault("turn", "")
	v.SetDefault("turn_user", "")
	v.SetDefault("turn_pass", "")
	v.SetDefault("relay", false)
	v.SetDefault("trickle", false)
	v.SetDefault("peer_timeout", DefaultPeerTimeout)
	v.SetDefault("connect_timeout", DefaultConnectTimeout)

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("server url must not be empty")
	}
	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, errors.New("--relay requires a TURN server")
	}
	return &cfg, nil
}
