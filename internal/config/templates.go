package config

import (
	"fmt"
	"os"
)

func Template() string {
	return daemonTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(daemonTemplate), 0o600)
}

const daemonTemplate = `# republishd configuration. Command-line flags override these values.

# TSIG key handed to nsupdate -k.
key_file = "/etc/republish/update.key"
# Remote zone that replaces the local suffix.
domain = "example.net"
# Authoritative server named in every update script.
server = "ns1.example.net"

# audited re-resolves existing records before removing them; unaudited keeps one record per host.
mode = "audited"
# 0 picks the mode default (600 audited, 7200 unaudited).
ttl = 0
local_suffix = "local"

service_type = "_ssh._tcp"
browse_interval = "30s"
browse_timeout = "3s"
resolve_timeout = "2s"
# Delete a host's records when it stops answering browses.
withdraw_on_loss = false
# Interface for mDNS browse and the ff02::fb reverse lookups; empty uses IPv4 multicast only.
mdns_interface = ""

# Resolver used for zone snapshots; defaults to server:53.
snapshot_resolver = ""
settle_interval = "100ms"
failure_budget = 5
nsupdate_path = "nsupdate"

# Run nsupdate on a remote host instead of locally.
ssh_host = ""
ssh_user = ""
ssh_key = ""
ssh_known_hosts = ""
ssh_insecure = false

admin_addr = ""
cors_origins = ["http://localhost:3000"]
journal_path = ""
nats_url = ""
nats_subject = "republish.outcomes"
`
