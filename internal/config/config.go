package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/C0neF/gomoku-project/internal/webrtc"
)

// Default configuration values
const (
	DefaultServer = "localhost:8080"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

var ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")

// Config holds the game client configuration
type Config struct {
	// Server is the signaling host, optionally with a scheme
	Server string `yaml:"server" env:"GOMOKU_SERVER" env-default:"localhost:8080"`
	Secure bool   `yaml:"secure" env:"GOMOKU_SECURE" env-default:"false"`

	// ICE servers for WebRTC
	STUNServers []string `yaml:"stun" env:"STUN_SERVER" env-separator:"," env-default:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"`
	TURNServer  string   `yaml:"turn" env:"TURN_SERVER"`
	TURNUser    string   `yaml:"turn-user" env:"TURN_USERNAME"`
	TURNPass    string   `yaml:"turn-pass" env:"TURN_PASSWORD"`
	ForceRelay  bool     `yaml:"force-relay" env:"FORCE_RELAY" env-default:"false"`
	DetectRelay bool     `yaml:"detect-relay" env:"DETECT_RELAY" env-default:"true"`

	NegotiationTimeout time.Duration `yaml:"negotiation-timeout" env:"NEGOTIATION_TIMEOUT" env-default:"30s"`
	AssignFallback     time.Duration `yaml:"assign-fallback" env:"ASSIGN_FALLBACK" env-default:"5s"`
	RequestTimeout     time.Duration `yaml:"request-timeout" env:"REQUEST_TIMEOUT" env-default:"10s"`
}

// Options for loading config with CLI flag overrides
type Options struct {
	ConfigPath string
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Config file, then environment variables
// 3. Defaults from struct tags
func Load(opts Options) (*Config, error) {
	cfg := &Config{}
	if err := read(opts.ConfigPath, cfg); err != nil {
		return nil, err
	}

	if opts.Server != "" {
		cfg.Server = opts.Server
	}
	if opts.STUNServer != "" {
		cfg.STUNServers = splitList(opts.STUNServer)
	}
	if opts.TURNServer != "" {
		cfg.TURNServer = opts.TURNServer
	}
	if opts.TURNUser != "" {
		cfg.TURNUser = opts.TURNUser
	}
	if opts.TURNPass != "" {
		cfg.TURNPass = opts.TURNPass
	}
	if opts.ForceRelay {
		cfg.ForceRelay = true
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, ErrRelayWithoutTURN
	}
	return cfg, nil
}

func read(path string, cfg any) error {
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return fmt.Errorf("unable to load config file: %w", err)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("unable to read environment: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// WebSocketURL returns the signaling endpoint. A server given with a scheme
// keeps it; otherwise Secure picks wss over ws.
func (c *Config) WebSocketURL() string {
	server := strings.TrimRight(c.Server, "/")
	if u, err := url.Parse(server); err == nil && u.Host != "" {
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
		if u.Path == "" {
			u.Path = "/ws"
		}
		return u.String()
	}

	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, server)
}

// TURNServers returns TURN server URLs if configured
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// ICE returns the peer connection settings.
func (c *Config) ICE() webrtc.ICEConfig {
	return webrtc.ICEConfig{
		STUN:        c.STUNServers,
		TURN:        c.TURNServers(),
		TURNUser:    c.TURNUser,
		TURNPass:    c.TURNPass,
		ForceRelay:  c.ForceRelay,
		DetectRelay: c.DetectRelay,
	}
}

// ServerConfig holds the signaling server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR" env-default:":8080"`
	AllowedOrigins  []string      `yaml:"allowed-origins" env:"ALLOWED_ORIGINS" env-separator:","`
	SendQueue       int           `yaml:"send-queue" env:"SEND_QUEUE" env-default:"256"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// LoadServer reads the server configuration from an optional file and the environment.
func LoadServer(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := read(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
