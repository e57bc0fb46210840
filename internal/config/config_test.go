package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/embedding"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSONWithEnv(t *testing.T) {
	t.Setenv("DEMIURGE_TEST_DSN", "postgres://u:p@db/demiurge")
	path := writeFile(t, "demiurge.json", `{
		"node": {"id": "n1", "dev_mode": true, "genesis_cgt": 500},
		"server": {"port": ${DEMIURGE_TEST_PORT:8080}},
		"database": {"postgres": {"dsn": "${DEMIURGE_TEST_DSN}"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("got port %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Postgres.DSN != "postgres://u:p@db/demiurge" {
		t.Errorf("got dsn %q", cfg.Database.Postgres.DSN)
	}
	if cfg.Node.BlockInterval != "6s" || cfg.Node.FaucetCGT != 1000 {
		t.Errorf("defaults not applied: %+v", cfg.Node)
	}

	cc := cfg.ChainConfig()
	if cc.NodeID != "n1" || !cc.DevMode {
		t.Errorf("chain config = %+v", cc)
	}
	if cc.GenesisBalance.Cmp(chain.CGT(500)) != 0 {
		t.Errorf("got genesis %s, want %s", cc.GenesisBalance, chain.CGT(500))
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "demiurge.yaml", `
node:
  id: yaml-node
  block_interval: 250ms
gateway:
  slack:
    enabled: true
    bot_token: xoxb-1
    channel: C42
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	d, _ := cfg.BlockInterval()
	if d != 250*time.Millisecond {
		t.Errorf("got interval %v", d)
	}
	if !cfg.Gateway.Slack.Enabled || cfg.Gateway.Slack.Channel != "C42" || cfg.Gateway.Slack.BotToken != "xoxb-1" {
		t.Errorf("slack = %+v", cfg.Gateway.Slack)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"interval", `{"node": {"block_interval": "soon"}}`, "block_interval"},
		{"archon", `{"node": {"genesis_archon": "zz"}}`, "genesis_archon"},
		{"threshold", `{"archon": {"anomaly_threshold": 2}}`, "anomaly_threshold"},
		{"syntax", `{"node":`, "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.json", tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	if Path() != DefaultPath {
		t.Errorf("got %q", Path())
	}
	t.Setenv("CONFIG_PATH", "/etc/demiurge.yaml")
	if Path() != "/etc/demiurge.yaml" {
		t.Errorf("got %q", Path())
	}
}

func TestLoadCLI(t *testing.T) {
	t.Setenv("DEMIURGE_RPC_URL", "http://node:9944")
	t.Setenv("DEMIURGE_RETRIES", "5")
	t.Setenv("DEMIURGE_TIMEOUT", "2s")
	t.Setenv("DEMIURGE_KEYSTORE", "/tmp/k.db")

	c, err := LoadCLI()
	if err != nil {
		t.Fatal(err)
	}
	if c.RPCURL != "http://node:9944" || c.Retries != 5 || c.Timeout != 2*time.Second || c.Keystore != "/tmp/k.db" {
		t.Errorf("cli = %+v", c)
	}

	t.Setenv("DEMIURGE_RETRIES", "many")
	if _, err := LoadCLI(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestShippedConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("QDRANT_HOST", "")
	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	if err != nil {
		t.Fatal(err)
	}
	wantArchon := ArchonConfig{
		HeartbeatWindow:  256,
		JournalSize:      1024,
		MaxRemotes:       64,
		MaxProposals:     256,
		AnomalyThreshold: 0.7,
		ChamberSize:      1000,
		MeshDecayRate:    0.001,
	}
	if diff := cmp.Diff(wantArchon, cfg.Archon); diff != "" {
		t.Errorf("archon (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(embedding.Config{Provider: "hash", Dimension: 256}, cfg.Embedding); diff != "" {
		t.Errorf("embedding (-want +got):\n%s", diff)
	}
	if cfg.Database.Postgres.DSN != "" || cfg.Database.Qdrant.Collection != "archon_memories" {
		t.Errorf("database = %+v", cfg.Database)
	}
}
