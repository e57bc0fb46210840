//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/events"
	"github.com/nidhogg/demiurge/internal/fabric"
	pgstore "github.com/nidhogg/demiurge/internal/store"
	"github.com/nidhogg/demiurge/sdk"
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Start Neo4j
	neo4jURI, neo4jCleanup, err := startNeo4j(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neo4j: %v\n", err)
		os.Exit(1)
	}
	testNeo4jURI = neo4jURI

	// 2. Start PostgreSQL
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		neo4jCleanup()
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	testPGDSN = pgDSN

	// 3. Start Redis
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		pgCleanup()
		neo4jCleanup()
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = redisURL

	code := m.Run()
	redisCleanup()
	pgCleanup()
	neo4jCleanup()
	os.Exit(code)
}

func TestJournalSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store, err := pgstore.New(ctx, testPGDSN, testLogger)
	if err != nil {
		t.Fatalf("pg store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	first := chain.NewNode(nodeConfig("e2e-journal"), testLogger)
	first.SetJournal(store)
	if ok, err := first.Restore(ctx); err != nil || ok {
		t.Fatalf("restore empty = %v, %v", ok, err)
	}
	if err := first.Genesis(ctx); err != nil {
		t.Fatal(err)
	}

	client := serve(t, first, nil, nil)
	bob := sdk.KeyFromPhrase("e2e test phrase", 1)
	res, err := client.CGT().Transfer(ctx, archonKey, sdk.AddressOf(bob), chain.CGT(25), 0)
	if err != nil || !res.Accepted {
		t.Fatalf("transfer = %+v, %v", res, err)
	}
	if _, err := first.ProduceBlock(ctx); err != nil {
		t.Fatal(err)
	}
	wantRoot, _ := first.StateRoot()

	second := chain.NewNode(nodeConfig("e2e-journal"), testLogger)
	second.SetJournal(store)
	ok, err := second.Restore(ctx)
	if err != nil || !ok {
		t.Fatalf("restore = %v, %v", ok, err)
	}
	if root, _ := second.StateRoot(); root != wantRoot {
		t.Fatal("restored state root differs")
	}
	if second.ChainInfo() != first.ChainInfo() {
		t.Fatalf("info = %+v, want %+v", second.ChainInfo(), first.ChainInfo())
	}
	if bal := second.Balance(chain.Address(bob.Address())); bal.Cmp(chain.CGT(25)) != 0 {
		t.Fatalf("bob balance = %s", bal)
	}
}

func TestBlocksAndDirectivesPublished(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bus, err := events.NewBus(ctx, testRedisURL, "e2e-events", testLogger)
	if err != nil {
		t.Fatalf("bus: %v", err)
	}
	defer bus.Close()

	blocks := bus.Subscribe(ctx, chain.TopicBlock)
	directives := bus.Subscribe(ctx, archon.TopicDirective)
	// XREAD with "$" only sees entries added after the first read starts.
	time.Sleep(500 * time.Millisecond)

	node := chain.NewNode(nodeConfig("e2e-events"), testLogger)
	node.SetPublisher(bus)
	if err := node.Genesis(ctx); err != nil {
		t.Fatal(err)
	}
	daemon := archon.NewDaemon(node, archon.DaemonConfig{}, testLogger)
	daemon.SetPublisher(bus)
	if err := daemon.Initialize(); err != nil {
		t.Fatal(err)
	}
	if _, err := daemon.Tick(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-blocks:
		if ev == nil || ev.Node != "e2e-events" {
			t.Fatalf("block event = %+v", ev)
		}
		var b chain.Block
		if err := json.Unmarshal(ev.Payload, &b); err != nil || b.Hash == "" {
			t.Fatalf("block payload = %s, %v", ev.Payload, err)
		}
	case <-ctx.Done():
		t.Fatal("no block event")
	}
	select {
	case ev := <-directives:
		if ev == nil || ev.Topic != archon.TopicDirective {
			t.Fatalf("directive event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no directive event")
	}
}

func TestMeshPersistsToNeo4j(t *testing.T) {
	ctx := context.Background()
	graph, err := fabric.NewNeo4jStore(testNeo4jURI, "", "", testLogger)
	if err != nil {
		t.Fatalf("neo4j store: %v", err)
	}
	defer graph.Close(ctx)

	mesh := fabric.NewMesh("e2e-a", 0, testLogger)
	mesh.SetStore(graph)
	mesh.AddNode(ctx, fabric.NodeInfo{ID: "e2e-b", Address: "10.0.0.2:9944", Health: 1})
	if _, err := mesh.Connect(ctx, "e2e-a", "e2e-b", 0.8, 12); err != nil {
		t.Fatal(err)
	}
	if _, err := mesh.Synchronize(ctx, "e2e-a", "e2e-b"); err != nil {
		t.Fatal(err)
	}

	reloaded := fabric.NewMesh("e2e-a", 0, testLogger)
	reloaded.SetStore(graph)
	n, err := reloaded.Load(ctx)
	if err != nil || n == 0 {
		t.Fatalf("load = %d, %v", n, err)
	}
	m, err := reloaded.Measure("e2e-a", "e2e-b")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := mesh.Measure("e2e-a", "e2e-b")
	if m.Resonance != want.Resonance {
		t.Fatalf("resonance = %v, want %v", m.Resonance, want.Resonance)
	}
}
