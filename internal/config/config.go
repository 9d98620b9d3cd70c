// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads and validates the observer's YAML configuration.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree for the observer core.
type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Flow     FlowConfig     `yaml:"flow"`
	Stream   StreamConfig   `yaml:"stream"`
	Settings SettingsConfig `yaml:"settings"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingInfo    `yaml:"logging"`
	Health   HealthConfig   `yaml:"health"`
}

// CaptureConfig controls the divert packet source.
type CaptureConfig struct {
	Filter      string        `yaml:"filter"`       // divert filter expression, default "ip and tcp"
	ChannelSize int           `yaml:"channel_size"` // bounded channel between capture and decode, default 1024
	RecvBackoff time.Duration `yaml:"recv_backoff"` // backoff after a transient recv error, default 100ms
}

// FlowConfig holds the runtime-loadable byte signatures used to elect the
// game server flow (open question 3: signatures may drift with a patch).
type FlowConfig struct {
	SmallSignatureHex string `yaml:"small_signature_hex"` // default 006333534200
	LoginPrefixHex    string `yaml:"login_prefix_hex"`    // default 00000062000300000001
	LoginSuffixHex    string `yaml:"login_suffix_hex"`    // default 000000000a4e
	MismatchThreshold int    `yaml:"mismatch_threshold"`  // default 5
	SmallSignature    []byte `yaml:"-"`
	LoginPrefix       []byte `yaml:"-"`
	LoginSuffix       []byte `yaml:"-"`
}

// StreamConfig bounds the per-flow reassembly buffer.
type StreamConfig struct {
	BufferCap    string `yaml:"buffer_cap"` // human size, default "10mb"
	BufferCapRaw int64  `yaml:"-"`
}

// SettingsConfig mirrors GlobalSettings, loaded at startup and mutable at
// runtime through the HTTP surface.
type SettingsConfig struct {
	AutoClearOnServerChange bool `yaml:"auto_clear_on_server_change"` // default true
	AutoClearOnTimeout      bool `yaml:"auto_clear_on_timeout"`       // default false
	OnlyRecordEliteDummy    bool `yaml:"only_record_elite_dummy"`     // default false
	TimeoutSeconds          int  `yaml:"timeout_seconds"`             // default 15
}

// SnapshotConfig controls persistence of the user-identity cache.
type SnapshotConfig struct {
	Path            string    `yaml:"path"`
	IntervalSeconds int       `yaml:"interval_seconds"`        // default 300, ignored when CronSchedule is set
	CronSchedule    string    `yaml:"cron_schedule,omitempty"` // optional 5-field cron expression, overrides IntervalSeconds
	Compress        bool      `yaml:"compress"`                // gzip the file with pgzip
	S3              *S3Config `yaml:"s3,omitempty"`
}

// S3Config optionally mirrors every snapshot write to an S3-compatible
// bucket, for archival across machine reinstalls.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Key    string `yaml:"key"`
}

// HTTPConfig controls the outbound snapshot/push surface.
type HTTPConfig struct {
	Addr string     `yaml:"addr"` // default ":7891"
	TLS  *TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig optionally terminates the dashboard listener in TLS 1.3.
// When CACertFile is set, client certificates are required and verified.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CACertFile string `yaml:"ca_cert_file,omitempty"`
}

// LoggingInfo controls structured log output.
type LoggingInfo struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	SessionDir string `yaml:"session_dir,omitempty"` // per-server-epoch debug logs, disabled when empty
}

// HealthConfig controls the host-resource monitor backing /api/v1/health
// and the periodic stats log line.
type HealthConfig struct {
	DiskPath        string `yaml:"disk_path"`         // default "/"
	IntervalSeconds int    `yaml:"interval_seconds"`  // default 15
	StatsLogMinutes int    `yaml:"stats_log_minutes"` // default 5, periodic summary log cadence
}

// Load reads and validates the YAML configuration file at path, applying
// defaults for every field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Capture.Filter == "" {
		c.Capture.Filter = "ip and tcp"
	}
	if c.Capture.ChannelSize <= 0 {
		c.Capture.ChannelSize = 1024
	}
	if c.Capture.RecvBackoff <= 0 {
		c.Capture.RecvBackoff = 100 * time.Millisecond
	}

	if c.Flow.SmallSignatureHex == "" {
		c.Flow.SmallSignatureHex = "006333534200"
	}
	if c.Flow.LoginPrefixHex == "" {
		c.Flow.LoginPrefixHex = "00000062000300000001"
	}
	if c.Flow.LoginSuffixHex == "" {
		c.Flow.LoginSuffixHex = "000000000a4e"
	}
	if c.Flow.MismatchThreshold <= 0 {
		c.Flow.MismatchThreshold = 5
	}
	var err error
	if c.Flow.SmallSignature, err = hex.DecodeString(c.Flow.SmallSignatureHex); err != nil {
		return fmt.Errorf("flow.small_signature_hex: %w", err)
	}
	if c.Flow.LoginPrefix, err = hex.DecodeString(c.Flow.LoginPrefixHex); err != nil {
		return fmt.Errorf("flow.login_prefix_hex: %w", err)
	}
	if c.Flow.LoginSuffix, err = hex.DecodeString(c.Flow.LoginSuffixHex); err != nil {
		return fmt.Errorf("flow.login_suffix_hex: %w", err)
	}

	if c.Stream.BufferCap == "" {
		c.Stream.BufferCap = "10mb"
	}
	capRaw, err := ParseByteSize(c.Stream.BufferCap)
	if err != nil {
		return fmt.Errorf("stream.buffer_cap: %w", err)
	}
	c.Stream.BufferCapRaw = capRaw

	if c.Settings.TimeoutSeconds <= 0 {
		c.Settings.TimeoutSeconds = 15
	}

	if c.Snapshot.IntervalSeconds <= 0 {
		c.Snapshot.IntervalSeconds = 300
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":7891"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Health.DiskPath == "" {
		c.Health.DiskPath = "/"
	}
	if c.Health.IntervalSeconds <= 0 {
		c.Health.IntervalSeconds = 15
	}
	if c.Health.StatsLogMinutes <= 0 {
		c.Health.StatsLogMinutes = 5
	}

	return nil
}

// ParseByteSize converts human-readable sizes like "256mb", "1gb" to bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordered longest suffix first so "mb" doesn't match as "b".
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
