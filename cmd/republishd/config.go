package main

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/danmuck/republish/internal/config"
	"github.com/danmuck/republish/internal/discovery"
	"github.com/danmuck/republish/internal/nsupdate"
	"github.com/danmuck/republish/internal/reconcile"
	"github.com/danmuck/republish/internal/zone"
)

// Only AAAA records are published, so only IPv6 addresses are browsed.
const browseFamilies = "6"

// settings is the merged runtime configuration: defaults, then the config file, then flags.
type settings struct {
	KeyFile          string
	Domain           string
	Server           string
	TTL              int
	Mode             reconcile.Mode
	LocalSuffix      string
	ServiceType      string
	BrowseInterval   time.Duration
	BrowseTimeout    time.Duration
	ResolveTimeout   time.Duration
	WithdrawOnLoss   bool
	MDNSInterface    string
	SnapshotResolver string
	SettleInterval   time.Duration
	FailureBudget    int
	NsupdatePath     string
	SSHHost          string
	SSHUser          string
	SSHKey           string
	SSHKnownHosts    string
	SSHInsecure      bool
	AdminAddr        string
	CORSOrigins      []string
	JournalPath      string
	NatsURL          string
	NatsSubject      string
}

func defaultSettings() settings {
	browse := discovery.DefaultBrowserConfig()
	emitter := nsupdate.DefaultEmitterConfig()
	return settings{
		Mode:           reconcile.ModeAudited,
		LocalSuffix:    reconcile.DefaultLocalSuffix,
		ServiceType:    browse.Service,
		BrowseInterval: browse.Interval,
		BrowseTimeout:  browse.Timeout,
		ResolveTimeout: 2 * time.Second,
		SettleInterval: emitter.Settle,
		FailureBudget:  emitter.Budget,
		NsupdatePath:   emitter.Binary,
	}
}

// loadFileSettings overlays the keys defined in path onto s.
func loadFileSettings(path string, s *settings) error {
	var raw config.Daemon
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load republishd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", config.ErrInvalid, undecoded[0].String(), path)
	}

	str := func(key, value string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(value)
		}
	}
	dur := func(key, value string, dst *time.Duration) error {
		if !meta.IsDefined(key) {
			return nil
		}
		d, err := config.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if d > 0 {
			*dst = d
		}
		return nil
	}

	str("key_file", raw.KeyFile, &s.KeyFile)
	str("domain", raw.Domain, &s.Domain)
	str("server", raw.Server, &s.Server)
	str("local_suffix", raw.LocalSuffix, &s.LocalSuffix)
	str("service_type", raw.ServiceType, &s.ServiceType)
	str("snapshot_resolver", raw.SnapshotResolver, &s.SnapshotResolver)
	str("mdns_interface", raw.MDNSInterface, &s.MDNSInterface)
	str("nsupdate_path", raw.NsupdatePath, &s.NsupdatePath)
	str("ssh_host", raw.SSHHost, &s.SSHHost)
	str("ssh_user", raw.SSHUser, &s.SSHUser)
	str("ssh_key", raw.SSHKey, &s.SSHKey)
	str("ssh_known_hosts", raw.SSHKnownHosts, &s.SSHKnownHosts)
	str("admin_addr", raw.AdminAddr, &s.AdminAddr)
	str("journal_path", raw.JournalPath, &s.JournalPath)
	str("nats_url", raw.NatsURL, &s.NatsURL)
	str("nats_subject", raw.NatsSubject, &s.NatsSubject)

	if meta.IsDefined("ttl") {
		s.TTL = raw.TTL
	}
	if meta.IsDefined("mode") {
		mode, err := reconcile.ParseMode(raw.Mode)
		if err != nil {
			return err
		}
		s.Mode = mode
	}
	if meta.IsDefined("withdraw_on_loss") {
		s.WithdrawOnLoss = raw.WithdrawOnLoss
	}
	if meta.IsDefined("failure_budget") {
		s.FailureBudget = raw.FailureBudget
	}
	if meta.IsDefined("ssh_insecure") {
		s.SSHInsecure = raw.SSHInsecure
	}
	if meta.IsDefined("cors_origins") {
		s.CORSOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	for _, d := range []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"browse_interval", raw.BrowseInterval, &s.BrowseInterval},
		{"browse_timeout", raw.BrowseTimeout, &s.BrowseTimeout},
		{"resolve_timeout", raw.ResolveTimeout, &s.ResolveTimeout},
		{"settle_interval", raw.SettleInterval, &s.SettleInterval},
	} {
		if err := dur(d.key, d.value, d.dst); err != nil {
			return err
		}
	}
	return nil
}

// flagValues holds the raw flag targets; only flags the user changed are applied.
type flagValues struct {
	configPath     string
	verbose        int
	keyFile        string
	domain         string
	server         string
	ttl            int
	mode           string
	localSuffix    string
	service        string
	withdrawOnLoss bool
	mdnsInterface  string
	snapshot       string
	nsupdatePath   string
	sshHost        string
	sshUser        string
	sshKey         string
	adminAddr      string
	journalPath    string
	natsURL        string
}

func bindFlags(fs *pflag.FlagSet, v *flagValues) {
	fs.StringVarP(&v.configPath, "config", "c", "", "TOML config file")
	fs.CountVarP(&v.verbose, "verbose", "v", "increase verbosity (-v debug, -vv trace)")
	fs.StringVarP(&v.keyFile, "key", "k", "", "TSIG key file passed to nsupdate -k")
	fs.StringVarP(&v.domain, "domain", "d", "", "remote domain replacing the local suffix")
	fs.StringVarP(&v.server, "server", "s", "", "authoritative server for updates")
	fs.IntVarP(&v.ttl, "ttl", "t", 0, "record TTL in seconds (default 600 audited, 7200 unaudited)")
	fs.StringVar(&v.mode, "mode", "", "audited or unaudited")
	fs.StringVar(&v.localSuffix, "local-suffix", "", "local-link suffix to replace")
	fs.StringVar(&v.service, "service", "", "mDNS service type to browse")
	fs.BoolVar(&v.withdrawOnLoss, "withdraw-on-loss", false, "delete records for hosts that disappear")
	fs.StringVar(&v.mdnsInterface, "mdns-interface", "", "network interface for mDNS browse and IPv6 reverse lookups")
	fs.StringVar(&v.snapshot, "snapshot-resolver", "", "resolver for zone snapshots (default server:53)")
	fs.StringVar(&v.nsupdatePath, "nsupdate", "", "nsupdate binary")
	fs.StringVar(&v.sshHost, "ssh-host", "", "run nsupdate on this host over ssh")
	fs.StringVar(&v.sshUser, "ssh-user", "", "ssh user for --ssh-host")
	fs.StringVar(&v.sshKey, "ssh-key", "", "ssh private key for --ssh-host")
	fs.StringVar(&v.adminAddr, "admin", "", "admin HTTP listen address")
	fs.StringVar(&v.journalPath, "journal", "", "badger directory for the transaction journal")
	fs.StringVar(&v.natsURL, "nats-url", "", "NATS server for outcome events")
}

func applyFlags(fs *pflag.FlagSet, v flagValues, s *settings) error {
	set := func(name, value string, dst *string) {
		if fs.Changed(name) {
			*dst = strings.TrimSpace(value)
		}
	}
	set("key", v.keyFile, &s.KeyFile)
	set("domain", v.domain, &s.Domain)
	set("server", v.server, &s.Server)
	set("local-suffix", v.localSuffix, &s.LocalSuffix)
	set("service", v.service, &s.ServiceType)
	set("snapshot-resolver", v.snapshot, &s.SnapshotResolver)
	set("mdns-interface", v.mdnsInterface, &s.MDNSInterface)
	set("nsupdate", v.nsupdatePath, &s.NsupdatePath)
	set("ssh-host", v.sshHost, &s.SSHHost)
	set("ssh-user", v.sshUser, &s.SSHUser)
	set("ssh-key", v.sshKey, &s.SSHKey)
	set("admin", v.adminAddr, &s.AdminAddr)
	set("journal", v.journalPath, &s.JournalPath)
	set("nats-url", v.natsURL, &s.NatsURL)

	if fs.Changed("ttl") {
		s.TTL = v.ttl
	}
	if fs.Changed("withdraw-on-loss") {
		s.WithdrawOnLoss = v.withdrawOnLoss
	}
	if fs.Changed("mode") {
		mode, err := reconcile.ParseMode(v.mode)
		if err != nil {
			return err
		}
		s.Mode = mode
	}
	return nil
}

// resolve fills mode-dependent defaults and checks the required values.
func (s *settings) resolve() error {
	var missing []string
	if s.KeyFile == "" {
		missing = append(missing, "key (-k)")
	}
	if s.Domain == "" {
		missing = append(missing, "domain (-d)")
	}
	if s.Server == "" {
		missing = append(missing, "server (-s)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", config.ErrInvalid, strings.Join(missing, ", "))
	}
	if s.TTL < 0 {
		return fmt.Errorf("%w: ttl must not be negative", config.ErrInvalid)
	}
	if s.TTL == 0 {
		s.TTL = s.Mode.DefaultTTL()
	}
	if s.SSHHost != "" && s.SSHUser == "" {
		return fmt.Errorf("%w: ssh user is required with an ssh host", config.ErrInvalid)
	}
	return nil
}

func (s settings) engineConfig() reconcile.Config {
	return reconcile.Config{
		Mode:         s.Mode,
		Server:       s.Server,
		KeyRef:       s.KeyFile,
		RemoteDomain: s.Domain,
		LocalSuffix:  s.LocalSuffix,
		TTL:          s.TTL,
		Family:       zone.FamilyIPv6,
	}
}

func (s settings) snapshotServer() string {
	if s.SnapshotResolver != "" {
		return s.SnapshotResolver
	}
	return s.Server
}

// browserConfig resolves the configured interface, so it fails when the interface does not exist.
func (s settings) browserConfig() (discovery.BrowserConfig, error) {
	cfg := discovery.DefaultBrowserConfig()
	if s.MDNSInterface != "" {
		iface, err := net.InterfaceByName(s.MDNSInterface)
		if err != nil {
			return cfg, fmt.Errorf("%w: mdns interface %q: %v", config.ErrInvalid, s.MDNSInterface, err)
		}
		cfg.Interface = iface
	}
	cfg.Service = s.ServiceType
	cfg.Interval = s.BrowseInterval
	cfg.Timeout = s.BrowseTimeout
	cfg.WithdrawOnLoss = s.WithdrawOnLoss
	cfg.Families = discovery.FamiliesFromSpec(browseFamilies)
	return cfg, nil
}

func (s settings) runner() nsupdate.Runner {
	if s.SSHHost == "" {
		return nsupdate.LocalRunner{}
	}
	return nsupdate.SSHRunner{
		Host:                        s.SSHHost,
		User:                        s.SSHUser,
		KeyPath:                     s.SSHKey,
		KnownHostsPath:              s.SSHKnownHosts,
		InsecureSkipHostKeyChecking: s.SSHInsecure,
		Timeout:                     10 * time.Second,
	}
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	return out
}
