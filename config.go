package authkit

import (
	"errors"
	"time"
)

// Config defines a public type used by authkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token      TokenConfig
	Password   PasswordConfig
	Revocation RevocationConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authkit APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authkit APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig controls the optional server-side registry. Enabled only
// takes effect when a Redis client is provided to the Builder; without one
// the Service stays fully stateless and refresh rotation does not
// invalidate earlier tokens.
type RevocationConfig struct {
	Enabled   bool
	KeyPrefix string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by authkit APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by authkit APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "authkit",
			Leeway:        0,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Revocation: RevocationConfig{
			Enabled:   true,
			KeyPrefix: "ak",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = append([]byte(nil), cfg.Token.PrivateKey...)
	out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("token access TTL must be positive")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("token refresh TTL must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	switch c.Token.SigningMethod {
	case "hs256", "ed25519":
	default:
		return errors.New("unsupported token signing method")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive when audit is enabled")
	}
	return nil
}
