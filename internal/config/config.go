package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("config: invalid")

// Daemon mirrors republishd's TOML file. Durations are kept as strings and checked by Validate.
type Daemon struct {
	KeyFile          string   `toml:"key_file"`
	Domain           string   `toml:"domain"`
	Server           string   `toml:"server"`
	TTL              int      `toml:"ttl"`
	Mode             string   `toml:"mode"`
	LocalSuffix      string   `toml:"local_suffix"`
	ServiceType      string   `toml:"service_type"`
	BrowseInterval   string   `toml:"browse_interval"`
	BrowseTimeout    string   `toml:"browse_timeout"`
	ResolveTimeout   string   `toml:"resolve_timeout"`
	WithdrawOnLoss   bool     `toml:"withdraw_on_loss"`
	MDNSInterface    string   `toml:"mdns_interface"`
	SnapshotResolver string   `toml:"snapshot_resolver"`
	SettleInterval   string   `toml:"settle_interval"`
	FailureBudget    int      `toml:"failure_budget"`
	NsupdatePath     string   `toml:"nsupdate_path"`
	SSHHost          string   `toml:"ssh_host"`
	SSHUser          string   `toml:"ssh_user"`
	SSHKey           string   `toml:"ssh_key"`
	SSHKnownHosts    string   `toml:"ssh_known_hosts"`
	SSHInsecure      bool     `toml:"ssh_insecure"`
	AdminAddr        string   `toml:"admin_addr"`
	CorsOrigins      []string `toml:"cors_origins"`
	JournalPath      string   `toml:"journal_path"`
	NatsURL          string   `toml:"nats_url"`
	NatsSubject      string   `toml:"nats_subject"`
}

// Load parses path strictly (unknown keys are errors) and validates the result.
func Load(path string) (Daemon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Daemon{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg Daemon
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Daemon{}, fmt.Errorf("%w: %s: %s", ErrInvalid, path, strings.TrimSpace(strict.String()))
		}
		return Daemon{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Daemon{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate requires the three identity keys and checks the shape of everything else that is set.
func Validate(cfg Daemon) error {
	if strings.TrimSpace(cfg.KeyFile) == "" {
		return fmt.Errorf("%w: key_file is required", ErrInvalid)
	}
	if strings.TrimSpace(cfg.Domain) == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalid)
	}
	if strings.TrimSpace(cfg.Server) == "" {
		return fmt.Errorf("%w: server is required", ErrInvalid)
	}
	if cfg.TTL < 0 {
		return fmt.Errorf("%w: ttl must not be negative", ErrInvalid)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "audited", "unaudited":
	default:
		return fmt.Errorf("%w: mode must be audited or unaudited, got %q", ErrInvalid, cfg.Mode)
	}
	if cfg.FailureBudget < 0 {
		return fmt.Errorf("%w: failure_budget must not be negative", ErrInvalid)
	}
	durations := map[string]string{
		"browse_interval": cfg.BrowseInterval,
		"browse_timeout":  cfg.BrowseTimeout,
		"resolve_timeout": cfg.ResolveTimeout,
		"settle_interval": cfg.SettleInterval,
	}
	for key, raw := range durations {
		if _, err := ParseDuration(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
	}
	if strings.TrimSpace(cfg.SSHHost) != "" && strings.TrimSpace(cfg.SSHUser) == "" {
		return fmt.Errorf("%w: ssh_user is required when ssh_host is set", ErrInvalid)
	}
	if strings.TrimSpace(cfg.NatsSubject) != "" && strings.TrimSpace(cfg.NatsURL) == "" {
		return fmt.Errorf("%w: nats_subject set without nats_url", ErrInvalid)
	}
	return nil
}

// ParseDuration accepts an empty string as zero, meaning "use the default".
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}
