// Package config manages the ranging daemon's configuration using
// koanf/v2.
//
// Supports YAML files, environment variables, and layered defaults.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/go-ranging/goranging/internal/ranging"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete ranging daemon configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Ranging RangingConfig `koanf:"ranging"`
	Peers   []PeerConfig  `koanf:"peers"`
}

// HTTPConfig holds the plain JSON introspection endpoint configuration
// (session listing, health) that replaces the teacher's ConnectRPC
// surface.
type HTTPConfig struct {
	// Addr is the HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// RangingConfig holds the default OOB negotiation constraints applied to
// every declared peer unless overridden (spec 3).
type RangingConfig struct {
	// AllowedTechnologies lists which technologies may be negotiated:
	// any of "uwb", "cs", "rtt", "rssi".
	AllowedTechnologies []string `koanf:"allowed_technologies"`

	// Security is the minimum BLE-CS security posture: "basic" or "secure".
	Security string `koanf:"security"`

	// Mode is the technology-selection policy: "auto", "high_accuracy",
	// "high_accuracy_preferred", or "fused".
	Mode string `koanf:"mode"`

	// FastestInterval is the fastest acceptable update interval.
	FastestInterval time.Duration `koanf:"fastest_interval"`
	// SlowestInterval is the slowest acceptable update interval.
	SlowestInterval time.Duration `koanf:"slowest_interval"`

	// MeasurementLimit caps the number of measurements a session emits
	// before stopping itself; 0 means unlimited.
	MeasurementLimit uint64 `koanf:"measurement_limit"`
}

// PeerConfig describes a declarative ranging peer from the configuration
// file. Each entry is connected once on daemon startup; SIGHUP reload does
// not re-read the peer list.
type PeerConfig struct {
	// PeerID is the peer's DeviceId, hex-encoded (32 hex characters).
	PeerID string `koanf:"peer_id"`

	// Addr is the OOB transport address (e.g., "10.0.0.5:7575"): dialed
	// for an initiator-role peer, listened on for a responder-role peer.
	Addr string `koanf:"addr"`

	// Role is this device's negotiation role for the peer: "initiator"
	// or "responder".
	Role string `koanf:"role"`
}

// SessionKey returns a unique identifier for the peer based on (id, addr).
// Used by Validate to reject duplicate peer entries.
func (pc PeerConfig) SessionKey() string {
	return pc.PeerID + "|" + pc.Addr
}

// DeviceId decodes PeerID as a ranging.DeviceId.
func (pc PeerConfig) DeviceId() (ranging.DeviceId, error) {
	raw, err := hex.DecodeString(pc.PeerID)
	if err != nil {
		return ranging.DeviceId{}, fmt.Errorf("parse peer_id %q: %w", pc.PeerID, err)
	}
	if len(raw) != len(ranging.DeviceId{}) {
		return ranging.DeviceId{}, fmt.Errorf("peer_id %q: %w", pc.PeerID, ErrInvalidPeerID)
	}
	var id ranging.DeviceId
	copy(id[:], raw)
	return id, nil
}

// DeviceRole maps Role to a ranging.DeviceRole.
func (pc PeerConfig) DeviceRole() (ranging.DeviceRole, error) {
	switch strings.ToLower(pc.Role) {
	case "initiator":
		return ranging.RoleInitiator, nil
	case "responder":
		return ranging.RoleResponder, nil
	default:
		return 0, fmt.Errorf("peer %q role %q: %w", pc.PeerID, pc.Role, ErrInvalidPeerRole)
	}
}

// Constraints builds the ranging.OobRangingConstraints this RangingConfig
// describes.
func (rc RangingConfig) Constraints() (ranging.OobRangingConstraints, error) {
	allowed, err := ParseTechnologyBitmap(rc.AllowedTechnologies)
	if err != nil {
		return ranging.OobRangingConstraints{}, err
	}
	security, err := ParseSecurity(rc.Security)
	if err != nil {
		return ranging.OobRangingConstraints{}, err
	}
	mode, err := ParseMode(rc.Mode)
	if err != nil {
		return ranging.OobRangingConstraints{}, err
	}
	return ranging.OobRangingConstraints{
		AllowedTechnologies: allowed,
		Security:            security,
		Mode:                 mode,
		FastestIntervalMs:    uint32(rc.FastestInterval.Milliseconds()),
		SlowestIntervalMs:    uint32(rc.SlowestInterval.Milliseconds()),
	}, nil
}

// ParseTechnologyBitmap converts technology name strings into a
// ranging.TechnologyBitmap.
func ParseTechnologyBitmap(names []string) (ranging.TechnologyBitmap, error) {
	var b ranging.TechnologyBitmap
	for _, name := range names {
		switch strings.ToLower(name) {
		case "uwb":
			b = b.Set(ranging.TechUWB)
		case "cs":
			b = b.Set(ranging.TechCS)
		case "rtt":
			b = b.Set(ranging.TechRTT)
		case "rssi":
			b = b.Set(ranging.TechRSSI)
		default:
			return 0, fmt.Errorf("technology %q: %w", name, ErrInvalidTechnology)
		}
	}
	return b, nil
}

// ParseSecurity maps a configuration security string to a
// ranging.SecurityRequirement.
func ParseSecurity(s string) (ranging.SecurityRequirement, error) {
	switch strings.ToLower(s) {
	case "", "basic":
		return ranging.SecurityBasic, nil
	case "secure":
		return ranging.SecuritySecure, nil
	default:
		return 0, fmt.Errorf("security %q: %w", s, ErrInvalidSecurity)
	}
}

// ParseMode maps a configuration mode string to a ranging.RangingMode.
func ParseMode(s string) (ranging.RangingMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ranging.ModeAuto, nil
	case "high_accuracy":
		return ranging.ModeHighAccuracy, nil
	case "high_accuracy_preferred":
		return ranging.ModeHighAccuracyPreferred, nil
	case "fused":
		return ranging.ModeFused, nil
	default:
		return 0, fmt.Errorf("mode %q: %w", s, ErrInvalidMode)
	}
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Ranging: RangingConfig{
			AllowedTechnologies: []string{"uwb", "cs", "rtt", "rssi"},
			Security:            "basic",
			Mode:                "auto",
			FastestInterval:     100 * time.Millisecond,
			SlowestInterval:     5 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for ranging daemon
// configuration. Variables are named GORANGING_<section>_<key>, e.g.,
// GORANGING_HTTP_ADDR.
const envPrefix = "GORANGING_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GORANGING_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// GORANGING_HTTP_ADDR -> http.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GORANGING_HTTP_ADDR -> http.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"http.addr":                  defaults.HTTP.Addr,
		"metrics.addr":               defaults.Metrics.Addr,
		"metrics.path":               defaults.Metrics.Path,
		"log.level":                  defaults.Log.Level,
		"log.format":                 defaults.Log.Format,
		"ranging.allowed_technologies": defaults.Ranging.AllowedTechnologies,
		"ranging.security":           defaults.Ranging.Security,
		"ranging.mode":               defaults.Ranging.Mode,
		"ranging.fastest_interval":   defaults.Ranging.FastestInterval.String(),
		"ranging.slowest_interval":   defaults.Ranging.SlowestInterval.String(),
		"ranging.measurement_limit":  defaults.Ranging.MeasurementLimit,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	ErrEmptyHTTPAddr  = errors.New("http.addr must not be empty")
	ErrInvalidTechnology = errors.New("unrecognized ranging technology")
	ErrInvalidSecurity   = errors.New("ranging.security must be basic or secure")
	ErrInvalidMode       = errors.New("ranging.mode must be auto, high_accuracy, high_accuracy_preferred, or fused")
	ErrInvalidInterval   = errors.New("ranging.fastest_interval must not exceed ranging.slowest_interval")
	ErrInvalidPeerID     = errors.New("peer_id must be 32 hex characters")
	ErrInvalidPeerRole   = errors.New("peer role must be initiator or responder")
	ErrInvalidPeerAddr   = errors.New("peer addr must not be empty")
	ErrDuplicatePeerKey  = errors.New("duplicate peer key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return ErrEmptyHTTPAddr
	}

	constraints, err := cfg.Ranging.Constraints()
	if err != nil {
		return err
	}
	if err := constraints.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInterval, err)
	}

	return validatePeers(cfg.Peers)
}

// validatePeers checks each declarative peer entry for correctness.
func validatePeers(peers []PeerConfig) error {
	seen := make(map[string]struct{}, len(peers))

	for i, pc := range peers {
		if _, err := pc.DeviceId(); err != nil {
			return fmt.Errorf("peers[%d]: %w", i, err)
		}
		if _, err := pc.DeviceRole(); err != nil {
			return fmt.Errorf("peers[%d]: %w", i, err)
		}
		if pc.Addr == "" {
			return fmt.Errorf("peers[%d]: %w", i, ErrInvalidPeerAddr)
		}

		key := pc.SessionKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("peers[%d] key %q: %w", i, key, ErrDuplicatePeerKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
