package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/republish/internal/zone"
)

var ErrInvalidConfig = errors.New("reconcile: invalid config")

type Mode string

const (
	ModeAudited   Mode = "audited"
	ModeUnaudited Mode = "unaudited"
)

const (
	DefaultAuditedTTL   = 600
	DefaultUnauditedTTL = 7200
	DefaultLocalSuffix  = "local"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAudited:
		return ModeAudited, nil
	case ModeUnaudited:
		return ModeUnaudited, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, raw)
	}
}

// DefaultTTL is the record TTL used when none is configured.
func (m Mode) DefaultTTL() int {
	if m == ModeUnaudited {
		return DefaultUnauditedTTL
	}
	return DefaultAuditedTTL
}

type Config struct {
	Mode         Mode
	Server       string
	KeyRef       string
	RemoteDomain string
	LocalSuffix  string
	TTL          int
	Family       zone.Family
}

func DefaultConfig() Config {
	return Config{
		Mode:        ModeAudited,
		LocalSuffix: DefaultLocalSuffix,
		TTL:         DefaultAuditedTTL,
		Family:      zone.FamilyIPv6,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.KeyRef) == "" {
		return fmt.Errorf("%w: key reference is required", ErrInvalidConfig)
	}
	if strings.Trim(c.RemoteDomain, ". ") == "" {
		return fmt.Errorf("%w: remote domain is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("%w: server is required", ErrInvalidConfig)
	}
	if strings.Trim(c.LocalSuffix, ". ") == "" {
		return fmt.Errorf("%w: local suffix is required", ErrInvalidConfig)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %d", ErrInvalidConfig, c.TTL)
	}
	if c.Mode != ModeAudited && c.Mode != ModeUnaudited {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Family != zone.FamilyIPv6 && c.Family != zone.FamilyIPv4 {
		return fmt.Errorf("%w: unsupported family %s", ErrInvalidConfig, c.Family)
	}
	return nil
}
