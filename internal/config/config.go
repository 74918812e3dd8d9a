// Package config manages nextfixd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/nextfix-go/nextfix/internal/session"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete nextfixd configuration.
type Config struct {
	Transport TransportConfig `koanf:"transport"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Defaults  SettingsConfig  `koanf:"defaults"`
	Sessions  []SessionConfig `koanf:"sessions"`
}

// TransportConfig holds the TCP acceptor/initiator configuration.
type TransportConfig struct {
	// ListenAddr is the TCP address the acceptor binds for inbound
	// sessions (e.g. ":5001"). Empty disables the acceptor.
	ListenAddr string `koanf:"listen_addr"`
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

// SettingsConfig mirrors session.Settings in a koanf-friendly,
// string/primitive-keyed shape (spec.md §6). A SessionConfig entry's
// own Settings field overrides these per-key, the way QuickFIX's
// SessionSettings layers a [DEFAULT] section under each [SESSION].
type SettingsConfig struct {
	HeartBtInt                 int           `koanf:"heart_bt_int"`
	CheckLatency                bool         `koanf:"check_latency"`
	MaxLatency                  time.Duration `koanf:"max_latency"`
	CheckCompID                 bool          `koanf:"check_comp_id"`
	TestRequestDelayMultiplier  float64       `koanf:"test_request_delay_multiplier"`
	ResetOnLogon                bool          `koanf:"reset_on_logon"`
	ResetOnLogout               bool          `koanf:"reset_on_logout"`
	ResetOnDisconnect           bool          `koanf:"reset_on_disconnect"`
	ResetOnError                bool          `koanf:"reset_on_error"`
	DisconnectOnError           bool          `koanf:"disconnect_on_error"`
	RefreshOnLogon              bool          `koanf:"refresh_on_logon"`
	PersistMessages             bool          `koanf:"persist_messages"`
	SendRedundantResendRequests bool          `koanf:"send_redundant_resend_requests"`
	ClosedResendInterval        bool          `koanf:"closed_resend_interval"`
	MillisecondsInTimeStamp     bool          `koanf:"milliseconds_in_time_stamp"`
	ValidateSequenceNumbers     bool          `koanf:"validate_sequence_numbers"`
	ValidateIncomingMessage     bool          `koanf:"validate_incoming_message"`
	RejectInvalidMessage        bool          `koanf:"reject_invalid_message"`
	ForceResendWhenCorruptedStore bool        `koanf:"force_resend_when_corrupted_store"`
	AllowUnknownMsgFields       bool          `koanf:"allow_unknown_msg_fields"`
	DisableHeartBeatCheck       bool          `koanf:"disable_heart_beat_check"`
	EnableLastMsgSeqNumProcessed bool         `koanf:"enable_last_msg_seq_num_processed"`
	EnableNextExpectedMsgSeqNum bool          `koanf:"enable_next_expected_msg_seq_num"`
	LogonTimeout                time.Duration `koanf:"logon_timeout"`
	LogoutTimeout               time.Duration `koanf:"logout_timeout"`
	ResendRequestChunkSize      int           `koanf:"resend_request_chunk_size"`
	AllowedRemoteAddresses      []string      `koanf:"allowed_remote_addresses"`
	LogonIntervals              []int         `koanf:"logon_intervals"`
	LogonForceSenderMsgSeqNum   bool          `koanf:"logon_force_sender_msg_seq_num"`
}

// SessionConfig describes a declarative FIX session from the
// configuration file. Each entry creates a session.Session on daemon
// startup, the way the teacher's BFDConfig.Sessions creates a BFD
// session per entry.
type SessionConfig struct {
	// BeginString is the session's protocol version, e.g. "FIX.4.4".
	BeginString string `koanf:"begin_string"`
	// SenderCompID / TargetCompID identify this side and the counterparty.
	SenderCompID string `koanf:"sender_comp_id"`
	TargetCompID string `koanf:"target_comp_id"`
	// Qualifier distinguishes otherwise-identical sessions.
	Qualifier string `koanf:"qualifier"`

	// Role is "initiator" or "acceptor".
	Role string `koanf:"role"`
	// ConnectAddr is the peer TCP address, required for Role=initiator.
	ConnectAddr string `koanf:"connect_addr"`

	// Settings overrides Defaults for this session only; zero-valued
	// fields here fall back to Defaults.
	Settings SettingsConfig `koanf:"settings"`
}

// SessionKey returns a unique identifier for the session based on
// (BeginString, SenderCompID, TargetCompID, Qualifier).
func (sc SessionConfig) SessionKey() string {
	return sc.BeginString + "|" + sc.SenderCompID + "|" + sc.TargetCompID + "|" + sc.Qualifier
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			ListenAddr: ":5001",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Defaults: SettingsConfig{
			HeartBtInt:                 30,
			CheckLatency:               true,
			MaxLatency:                 120 * time.Second,
			CheckCompID:                true,
			TestRequestDelayMultiplier: 0.5,
			PersistMessages:            true,
			ValidateSequenceNumbers:    true,
			ValidateIncomingMessage:    true,
			RejectInvalidMessage:       true,
			LogonTimeout:               10 * time.Second,
			LogoutTimeout:              2 * time.Second,
			LogonIntervals:             []int{5},
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for nextfixd configuration.
// Variables are named NEXTFIX_<section>_<key>, e.g., NEXTFIX_TRANSPORT_LISTEN_ADDR.
const envPrefix = "NEXTFIX_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NEXTFIX_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	NEXTFIX_TRANSPORT_LISTEN_ADDR -> transport.listen_addr
//	NEXTFIX_METRICS_ADDR          -> metrics.addr
//	NEXTFIX_METRICS_PATH          -> metrics.path
//	NEXTFIX_LOG_LEVEL             -> log.level
//	NEXTFIX_LOG_FORMAT            -> log.format
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

// envKeyMapper transforms NEXTFIX_TRANSPORT_LISTEN_ADDR -> transport.listen_addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"transport.listen_addr":                defaults.Transport.ListenAddr,
		"metrics.addr":                         defaults.Metrics.Addr,
		"metrics.path":                         defaults.Metrics.Path,
		"log.level":                            defaults.Log.Level,
		"log.format":                           defaults.Log.Format,
		"defaults.heart_bt_int":                defaults.Defaults.HeartBtInt,
		"defaults.check_latency":               defaults.Defaults.CheckLatency,
		"defaults.max_latency":                 defaults.Defaults.MaxLatency.String(),
		"defaults.check_comp_id":               defaults.Defaults.CheckCompID,
		"defaults.test_request_delay_multiplier": defaults.Defaults.TestRequestDelayMultiplier,
		"defaults.persist_messages":            defaults.Defaults.PersistMessages,
		"defaults.validate_sequence_numbers":   defaults.Defaults.ValidateSequenceNumbers,
		"defaults.validate_incoming_message":   defaults.Defaults.ValidateIncomingMessage,
		"defaults.reject_invalid_message":      defaults.Defaults.RejectInvalidMessage,
		"defaults.logon_timeout":               defaults.Defaults.LogonTimeout.String(),
		"defaults.logout_timeout":              defaults.Defaults.LogoutTimeout.String(),
		"defaults.logon_intervals":             defaults.Defaults.LogonIntervals,
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
	// ErrEmptyTransportAddr indicates both the listen address is empty
	// and no session declares a connect address, leaving nothing to
	// start.
	ErrEmptyTransportAddr = errors.New("transport.listen_addr must not be empty when no initiator sessions are configured")

	// ErrInvalidHeartBtInt indicates a negative heartbeat interval.
	ErrInvalidHeartBtInt = errors.New("heart_bt_int must be >= 0")

	// ErrInvalidSessionBeginString indicates a session is missing its
	// protocol version.
	ErrInvalidSessionBeginString = errors.New("session begin_string must not be empty")

	// ErrInvalidSessionCompIDs indicates a session is missing a CompID.
	ErrInvalidSessionCompIDs = errors.New("session sender_comp_id and target_comp_id must not be empty")

	// ErrInvalidSessionRole indicates a session has an unrecognized role.
	ErrInvalidSessionRole = errors.New("session role must be initiator or acceptor")

	// ErrMissingConnectAddr indicates an initiator session has no
	// connect address.
	ErrMissingConnectAddr = errors.New("initiator session requires connect_addr")

	// ErrDuplicateSessionKey indicates two sessions share the same
	// (begin_string, sender, target, qualifier) key.
	ErrDuplicateSessionKey = errors.New("duplicate session key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Defaults.HeartBtInt < 0 {
		return ErrInvalidHeartBtInt
	}

	hasInitiator := false
	if err := validateSessions(cfg.Sessions, &hasInitiator); err != nil {
		return err
	}

	if cfg.Transport.ListenAddr == "" && !hasInitiator {
		return ErrEmptyTransportAddr
	}

	return nil
}

// ValidSessionRoles lists the recognized session role strings.
var ValidSessionRoles = map[string]bool{
	"initiator": true,
	"acceptor":  true,
}

// validateSessions checks each declarative session entry for correctness.
func validateSessions(sessions []SessionConfig, hasInitiator *bool) error {
	seen := make(map[string]struct{}, len(sessions))

	for i, sc := range sessions {
		if sc.BeginString == "" {
			return fmt.Errorf("sessions[%d]: %w", i, ErrInvalidSessionBeginString)
		}

		if sc.SenderCompID == "" || sc.TargetCompID == "" {
			return fmt.Errorf("sessions[%d]: %w", i, ErrInvalidSessionCompIDs)
		}

		if sc.Role != "" && !ValidSessionRoles[sc.Role] {
			return fmt.Errorf("sessions[%d] role %q: %w", i, sc.Role, ErrInvalidSessionRole)
		}

		if sc.Role == "initiator" {
			*hasInitiator = true
			if sc.ConnectAddr == "" {
				return fmt.Errorf("sessions[%d]: %w", i, ErrMissingConnectAddr)
			}
		}

		if sc.Settings.HeartBtInt < 0 {
			return fmt.Errorf("sessions[%d]: %w", i, ErrInvalidHeartBtInt)
		}

		key := sc.SessionKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("sessions[%d] key %q: %w", i, key, ErrDuplicateSessionKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Session Translation
// -------------------------------------------------------------------------

// ID returns the session.ID this declarative entry identifies.
func (sc SessionConfig) ID() session.ID {
	return session.ID{
		BeginString:  sc.BeginString,
		SenderCompID: sc.SenderCompID,
		TargetCompID: sc.TargetCompID,
		Qualifier:    sc.Qualifier,
	}
}

// IsInitiator reports whether this session entry dials out rather than
// accepting an inbound connection.
func (sc SessionConfig) IsInitiator() bool {
	return sc.Role == "initiator"
}

// Settings merges defaults with this entry's per-session overrides,
// the same global-then-per-SessionID layering QuickFIX's
// SessionSettings applies: a zero-valued override field inherits the
// default, so callers only need to set the keys they actually want to
// change. The one exception is LogonIntervals/AllowedRemoteAddresses,
// which override wholesale when non-nil since a partial merge of a
// list has no sensible meaning here.
func (sc SessionConfig) Settings(defaults SettingsConfig) session.Settings {
	merged := defaults
	ov := sc.Settings

	merge := func(dst *bool, override bool) {
		if override {
			*dst = override
		}
	}
	merge(&merged.CheckLatency, ov.CheckLatency)
	merge(&merged.CheckCompID, ov.CheckCompID)
	merge(&merged.ResetOnLogon, ov.ResetOnLogon)
	merge(&merged.ResetOnLogout, ov.ResetOnLogout)
	merge(&merged.ResetOnDisconnect, ov.ResetOnDisconnect)
	merge(&merged.ResetOnError, ov.ResetOnError)
	merge(&merged.DisconnectOnError, ov.DisconnectOnError)
	merge(&merged.RefreshOnLogon, ov.RefreshOnLogon)
	merge(&merged.PersistMessages, ov.PersistMessages)
	merge(&merged.ValidateSequenceNumbers, ov.ValidateSequenceNumbers)
	merge(&merged.ValidateIncomingMessage, ov.ValidateIncomingMessage)
	merge(&merged.RejectInvalidMessage, ov.RejectInvalidMessage)
	merge(&merged.SendRedundantResendRequests, ov.SendRedundantResendRequests)
	merge(&merged.ClosedResendInterval, ov.ClosedResendInterval)
	merge(&merged.MillisecondsInTimeStamp, ov.MillisecondsInTimeStamp)
	merge(&merged.ForceResendWhenCorruptedStore, ov.ForceResendWhenCorruptedStore)
	merge(&merged.AllowUnknownMsgFields, ov.AllowUnknownMsgFields)
	merge(&merged.DisableHeartBeatCheck, ov.DisableHeartBeatCheck)
	merge(&merged.EnableLastMsgSeqNumProcessed, ov.EnableLastMsgSeqNumProcessed)
	merge(&merged.EnableNextExpectedMsgSeqNum, ov.EnableNextExpectedMsgSeqNum)
	merge(&merged.LogonForceSenderMsgSeqNum, ov.LogonForceSenderMsgSeqNum)

	if ov.HeartBtInt != 0 {
		merged.HeartBtInt = ov.HeartBtInt
	}
	if ov.MaxLatency != 0 {
		merged.MaxLatency = ov.MaxLatency
	}
	if ov.TestRequestDelayMultiplier != 0 {
		merged.TestRequestDelayMultiplier = ov.TestRequestDelayMultiplier
	}
	if ov.LogonTimeout != 0 {
		merged.LogonTimeout = ov.LogonTimeout
	}
	if ov.LogoutTimeout != 0 {
		merged.LogoutTimeout = ov.LogoutTimeout
	}
	if ov.ResendRequestChunkSize != 0 {
		merged.ResendRequestChunkSize = ov.ResendRequestChunkSize
	}
	if ov.AllowedRemoteAddresses != nil {
		merged.AllowedRemoteAddresses = ov.AllowedRemoteAddresses
	}
	if ov.LogonIntervals != nil {
		merged.LogonIntervals = ov.LogonIntervals
	}
	return session.Settings{
		HeartBtInt:                    merged.HeartBtInt,
		CheckLatency:                  merged.CheckLatency,
		MaxLatency:                    merged.MaxLatency,
		CheckCompID:                   merged.CheckCompID,
		TestRequestDelayMultiplier:    merged.TestRequestDelayMultiplier,
		ResetOnLogon:                  merged.ResetOnLogon,
		ResetOnLogout:                 merged.ResetOnLogout,
		ResetOnDisconnect:             merged.ResetOnDisconnect,
		ResetOnError:                  merged.ResetOnError,
		DisconnectOnError:             merged.DisconnectOnError,
		RefreshOnLogon:                merged.RefreshOnLogon,
		PersistMessages:               merged.PersistMessages,
		SendRedundantResendRequests:   merged.SendRedundantResendRequests,
		ClosedResendInterval:          merged.ClosedResendInterval,
		MillisecondsInTimeStamp:       merged.MillisecondsInTimeStamp,
		ValidateSequenceNumbers:       merged.ValidateSequenceNumbers,
		ValidateIncomingMessage:       merged.ValidateIncomingMessage,
		RejectInvalidMessage:          merged.RejectInvalidMessage,
		ForceResendWhenCorruptedStore: merged.ForceResendWhenCorruptedStore,
		AllowUnknownMsgFields:         merged.AllowUnknownMsgFields,
		DisableHeartBeatCheck:         merged.DisableHeartBeatCheck,
		EnableLastMsgSeqNumProcessed:  merged.EnableLastMsgSeqNumProcessed,
		EnableNextExpectedMsgSeqNum:   merged.EnableNextExpectedMsgSeqNum,
		LogonTimeout:                  merged.LogonTimeout,
		LogoutTimeout:                 merged.LogoutTimeout,
		ResendRequestChunkSize:        merged.ResendRequestChunkSize,
		AllowedRemoteAddresses:        merged.AllowedRemoteAddresses,
		LogonIntervals:                merged.LogonIntervals,
		LogonForceSenderMsgSeqNum:     merged.LogonForceSenderMsgSeqNum,
	}
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
