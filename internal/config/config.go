// Package config loads node and CLI configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/embedding"
	"github.com/nidhogg/demiurge/internal/gateway"
	"github.com/nidhogg/demiurge/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "configs/demiurge.json"

// Config is the node daemon configuration.
type Config struct {
	Node      NodeConfig       `json:"node" yaml:"node"`
	Server    ServerConfig     `json:"server" yaml:"server"`
	Archon    ArchonConfig     `json:"archon" yaml:"archon"`
	Gateway   GatewayConfig    `json:"gateway" yaml:"gateway"`
	Database  DatabaseConfig   `json:"database" yaml:"database"`
	Embedding embedding.Config `json:"embedding" yaml:"embedding"`
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
}

type NodeConfig struct {
	ID            string `json:"id" yaml:"id"`
	DevMode       bool   `json:"dev_mode" yaml:"dev_mode"`
	GenesisArchon string `json:"genesis_archon" yaml:"genesis_archon"` // hex address
	GenesisName   string `json:"genesis_name" yaml:"genesis_name"`
	GenesisCGT    int64  `json:"genesis_cgt" yaml:"genesis_cgt"`
	FaucetCGT     int64  `json:"faucet_cgt" yaml:"faucet_cgt"`
	MempoolSize   int    `json:"mempool_size" yaml:"mempool_size"`
	BlockInterval string `json:"block_interval" yaml:"block_interval"`
}

type ServerConfig struct {
	Port      int    `json:"port" yaml:"port"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
}

type ArchonConfig struct {
	HeartbeatWindow  int     `json:"heartbeat_window" yaml:"heartbeat_window"`
	JournalSize      int     `json:"journal_size" yaml:"journal_size"`
	MaxRemotes       int     `json:"max_remotes" yaml:"max_remotes"`
	MaxProposals     int     `json:"max_proposals" yaml:"max_proposals"`
	AnomalyThreshold float64 `json:"anomaly_threshold" yaml:"anomaly_threshold"`
	ChamberSize      int     `json:"chamber_size" yaml:"chamber_size"`
	MeshDecayRate    float64 `json:"mesh_decay_rate" yaml:"mesh_decay_rate"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack" yaml:"slack"`
	Discord DiscordGatewayConfig `json:"discord" yaml:"discord"`
}

type SlackGatewayConfig struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	gateway.SlackConfig `yaml:",inline"`
}

type DiscordGatewayConfig struct {
	Enabled               bool `json:"enabled" yaml:"enabled"`
	gateway.DiscordConfig `yaml:",inline"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j" yaml:"neo4j"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant" yaml:"qdrant"`
}

type PostgresConfig struct {
	DSN        string `json:"dsn" yaml:"dsn"`
	Migrations string `json:"migrations" yaml:"migrations"`
}

type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

type RedisConfig struct {
	URL string `json:"url" yaml:"url"`
}

type QdrantConfig struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	Collection string `json:"collection" yaml:"collection"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

func expandEnv(data []byte) []byte {
	return envVarRe.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envVarRe.FindSubmatch(match)
		if v := os.Getenv(string(parts[1])); v != "" {
			return []byte(v)
		}
		return parts[2]
	})
}

// Load reads a JSON or YAML config file, substitutes environment variable
// references and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	resolved := expandEnv(data)

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(resolved, &cfg)
	default:
		err = json.Unmarshal(resolved, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func (c *Config) applyDefaults() {
	if c.Node.ID == "" {
		c.Node.ID = "demiurge-node"
	}
	if c.Node.GenesisCGT == 0 {
		c.Node.GenesisCGT = 1_000_000
	}
	if c.Node.FaucetCGT == 0 {
		c.Node.FaucetCGT = 1000
	}
	if c.Node.BlockInterval == "" {
		c.Node.BlockInterval = "6s"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9944
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Postgres.Migrations == "" {
		c.Database.Postgres.Migrations = "migrations"
	}
	if c.Database.Qdrant.Port == 0 {
		c.Database.Qdrant.Port = 6334
	}
	if c.Telemetry.Endpoint == "" {
		if ep := os.Getenv("DEMIURGE_OTEL_ENDPOINT"); ep != "" {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = ep
		}
	}
}

// Validate rejects settings the node cannot start with.
func (c *Config) Validate() error {
	if _, err := c.BlockInterval(); err != nil {
		return err
	}
	if c.Node.GenesisArchon != "" {
		if _, err := chain.ParseAddress(c.Node.GenesisArchon); err != nil {
			return fmt.Errorf("node.genesis_archon: %w", err)
		}
	}
	if c.Node.GenesisCGT < 0 || c.Node.FaucetCGT < 0 {
		return fmt.Errorf("node: genesis and faucet amounts must not be negative")
	}
	if c.Archon.AnomalyThreshold < 0 || c.Archon.AnomalyThreshold > 1 {
		return fmt.Errorf("archon.anomaly_threshold %v outside [0,1]", c.Archon.AnomalyThreshold)
	}
	return nil
}

// BlockInterval parses node.block_interval.
func (c *Config) BlockInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Node.BlockInterval)
	if err != nil {
		return 0, fmt.Errorf("node.block_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("node.block_interval must be positive")
	}
	return d, nil
}

// ChainConfig converts the node section for chain.NewNode.
func (c *Config) ChainConfig() chain.Config {
	cc := chain.Config{
		NodeID:          c.Node.ID,
		DevMode:         c.Node.DevMode,
		GenesisName:     c.Node.GenesisName,
		GenesisBalance:  chain.CGT(c.Node.GenesisCGT),
		DevFaucetAmount: chain.CGT(c.Node.FaucetCGT),
		MempoolSize:     c.Node.MempoolSize,
	}
	if c.Node.GenesisArchon != "" {
		cc.GenesisArchon, _ = chain.ParseAddress(c.Node.GenesisArchon)
	}
	return cc
}
