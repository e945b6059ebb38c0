package telegraph

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTickRate   = 60
	DefaultListenAddr = ":7100"
	DefaultTransport  = "quic"
	DefaultLogLevel   = "info"

	// MaxSessionPlayers is the largest session the polling code handles.
	MaxSessionPlayers = 2
)

// PeerConfig locates the remote player with the given number.
type PeerConfig struct {
	Player  int    `yaml:"player"`
	Address string `yaml:"address"`
}

// Config holds the settings of a peer, usually loaded from a YAML file
// with TELEGRAPH_* environment variables taking precedence.
type Config struct {
	NumPlayers            int           `yaml:"num_players"`
	LocalPlayer           int           `yaml:"local_player"`
	FrameDelay            int           `yaml:"frame_delay"`
	TickRate              int           `yaml:"tick_rate"`
	DisconnectTimeout     time.Duration `yaml:"disconnect_timeout"`
	DisconnectNotifyStart time.Duration `yaml:"disconnect_notify_start"`
	CheckDistance         int           `yaml:"check_distance"`
	Transport             string        `yaml:"transport"`
	Listen                string        `yaml:"listen"`
	Peers                 []PeerConfig  `yaml:"peers"`
	JournalPath           string        `yaml:"journal_path"`
	LogLevel              string        `yaml:"log_level"`
}

// DefaultConfig returns the configuration of a two player session.
func DefaultConfig() *Config {
	return &Config{
		NumPlayers:            2,
		LocalPlayer:           1,
		TickRate:              DefaultTickRate,
		DisconnectTimeout:     DefaultDisconnectTimeout,
		DisconnectNotifyStart: DefaultDisconnectNotifyStart,
		CheckDistance:         DefaultCheckDistance,
		Transport:             DefaultTransport,
		Listen:                DefaultListenAddr,
		LogLevel:              DefaultLogLevel,
	}
}

// LoadConfig reads the YAML file at path, if not empty, over the defaults,
// then applies environment overrides. Every invalid setting is reported in
// the returned error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	var problems []string

	envInt := func(key string, dst *int, min int) {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < min {
				problems = append(problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, min, raw))
				return
			}
			*dst = v
		}
	}
	envDuration := func(key string, dst *time.Duration) {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			v, err := time.ParseDuration(raw)
			if err != nil || v < 0 {
				problems = append(problems, fmt.Sprintf("%s must be a non-negative duration, got %q", key, raw))
				return
			}
			*dst = v
		}
	}
	envString := func(key string, dst *string) {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			*dst = raw
		}
	}

	envInt("TELEGRAPH_NUM_PLAYERS", &cfg.NumPlayers, 1)
	envInt("TELEGRAPH_LOCAL_PLAYER", &cfg.LocalPlayer, 1)
	envInt("TELEGRAPH_FRAME_DELAY", &cfg.FrameDelay, 0)
	envInt("TELEGRAPH_TICK_RATE", &cfg.TickRate, 1)
	envInt("TELEGRAPH_CHECK_DISTANCE", &cfg.CheckDistance, 1)
	envDuration("TELEGRAPH_DISCONNECT_TIMEOUT", &cfg.DisconnectTimeout)
	envDuration("TELEGRAPH_DISCONNECT_NOTIFY_START", &cfg.DisconnectNotifyStart)
	envString("TELEGRAPH_TRANSPORT", &cfg.Transport)
	envString("TELEGRAPH_LISTEN", &cfg.Listen)
	envString("TELEGRAPH_JOURNAL", &cfg.JournalPath)
	envString("TELEGRAPH_LOG_LEVEL", &cfg.LogLevel)

	if raw := strings.TrimSpace(os.Getenv("TELEGRAPH_PEERS")); raw != "" {
		// 2=host:port,3=host:port
		cfg.Peers = nil
		for _, item := range strings.Split(raw, ",") {
			num, addr, ok := strings.Cut(strings.TrimSpace(item), "=")
			n, err := strconv.Atoi(num)
			if !ok || err != nil || addr == "" {
				problems = append(problems, fmt.Sprintf("TELEGRAPH_PEERS entries must look like player=address, got %q", item))
				continue
			}
			cfg.Peers = append(cfg.Peers, PeerConfig{Player: n, Address: addr})
		}
	}

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

func (c *Config) validate() []string {
	var problems []string
	if c.NumPlayers < 1 || c.NumPlayers > MaxSessionPlayers {
		problems = append(problems, fmt.Sprintf("num_players must be within 1..%d", MaxSessionPlayers))
	}
	if c.TickRate < 1 {
		problems = append(problems, "tick_rate must be at least 1")
	}
	if c.LocalPlayer < 1 || c.LocalPlayer > c.NumPlayers {
		problems = append(problems, fmt.Sprintf("local_player must be within 1..%d", c.NumPlayers))
	}
	if c.CheckDistance < 1 || c.CheckDistance >= MaxPredictionFrames {
		problems = append(problems, fmt.Sprintf("check_distance must be within 1..%d", MaxPredictionFrames-1))
	}
	if c.DisconnectNotifyStart > c.DisconnectTimeout {
		problems = append(problems, "disconnect_notify_start must not exceed disconnect_timeout")
	}
	switch c.Transport {
	case "quic", "websocket":
	default:
		problems = append(problems, fmt.Sprintf("unknown transport %q", c.Transport))
	}
	for _, p := range c.Peers {
		if p.Player < 1 || p.Player > c.NumPlayers || p.Player == c.LocalPlayer {
			problems = append(problems, fmt.Sprintf("peer player number %d is invalid", p.Player))
		}
	}
	return problems
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Options returns the session options matching this configuration.
func (c *Config) Options() []SessionOption {
	return []SessionOption{
		WithDisconnectTimeout(c.DisconnectTimeout),
		WithDisconnectNotifyStart(c.DisconnectNotifyStart),
		CheckDistance(c.CheckDistance),
	}
}
