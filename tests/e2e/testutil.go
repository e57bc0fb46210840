//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/fabric"
	"github.com/nidhogg/demiurge/internal/rpc"
	"github.com/nidhogg/demiurge/internal/signing"
	"github.com/nidhogg/demiurge/sdk"
)

// Set by TestMain, shared by every test.
var (
	testLogger   *zap.Logger
	testPGDSN    string
	testRedisURL string
	testNeo4jURI string
)

var archonKey = signing.KeyFromPhrase("e2e test phrase", 0)

// startNeo4j starts a Neo4j testcontainer, returns URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		testcontainers.TerminateContainer(container)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { testcontainers.TerminateContainer(container) }
	return uri, cleanup, nil
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("demiurge_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		testcontainers.TerminateContainer(container)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { testcontainers.TerminateContainer(container) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		testcontainers.TerminateContainer(container)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	cleanup := func() { testcontainers.TerminateContainer(container) }
	return "redis://" + endpoint, cleanup, nil
}

func nodeConfig(id string) chain.Config {
	return chain.Config{
		NodeID:          id,
		DevMode:         true,
		GenesisArchon:   chain.Address(archonKey.Address()),
		GenesisName:     "Genesis",
		GenesisBalance:  chain.CGT(1000),
		DevFaucetAmount: chain.CGT(10),
	}
}

// serve exposes node over JSON-RPC and returns an SDK client for it.
func serve(t *testing.T, node *chain.Node, daemon *archon.Daemon, mesh *fabric.Mesh) *sdk.Client {
	t.Helper()
	srv := rpc.NewServer(node, daemon, mesh, nil, testLogger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return sdk.NewClient(ts.URL+"/rpc", sdk.WithRetries(0), sdk.WithTimeout(10*time.Second))
}
