package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/clock"
	"github.com/nidhogg/demiurge/internal/config"
	"github.com/nidhogg/demiurge/internal/embedding"
	"github.com/nidhogg/demiurge/internal/events"
	"github.com/nidhogg/demiurge/internal/fabric"
	"github.com/nidhogg/demiurge/internal/gateway"
	"github.com/nidhogg/demiurge/internal/rpc"
	pgstore "github.com/nidhogg/demiurge/internal/store"
	"github.com/nidhogg/demiurge/internal/telemetry"
	"github.com/nidhogg/demiurge/internal/vectorstore"
	"github.com/nidhogg/demiurge/sdk"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const anomalySweep = 30 * time.Second

func newLogger(level string, dev bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// meshDisorder is how unevenly resonance is spread over the links. Evenly
// spread resonance has entropy 1 and reads as fully ordered.
func meshDisorder(t fabric.Topology) float64 {
	if t.LinkCount < 2 {
		return 0
	}
	return 1 - t.Entropy
}

func main() {
	_ = godotenv.Load()

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.LogLevel, cfg.Node.DevMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Demiurge node...", zap.String("config", cfgPath), zap.String("node", cfg.Node.ID))

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("tracing unavailable", zap.Error(err))
	}

	interval, _ := cfg.BlockInterval()
	node := chain.NewNode(cfg.ChainConfig(), logger)

	// Initialize PostgreSQL journal
	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.Database.Postgres.Migrations); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			node.SetJournal(ps)
		}
	}

	restored, err := node.Restore(ctx)
	if err != nil {
		logger.Fatal("restore chain", zap.Error(err))
	}
	if !restored {
		if err := node.Genesis(ctx); err != nil {
			logger.Fatal("genesis", zap.Error(err))
		}
	}

	// Initialize event bus
	var bus *events.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := events.NewBus(ctx, cfg.Database.Redis.URL, cfg.Node.ID, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without events", zap.Error(busErr))
		} else {
			bus = b
			node.SetPublisher(bus)
		}
	}

	// Initialize resonance mesh
	mesh := fabric.NewMesh(cfg.Node.ID, cfg.Archon.MeshDecayRate, logger)
	if cfg.Archon.MaxRemotes > 0 {
		mesh.SetMaxNodes(cfg.Archon.MaxRemotes + 1)
	}
	var graph *fabric.Neo4jStore
	if cfg.Database.Neo4j.URI != "" {
		g, gErr := fabric.NewNeo4jStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr == nil {
			gErr = g.Ping(ctx)
		}
		if gErr != nil {
			logger.Warn("Neo4j unavailable, mesh is in-memory only", zap.Error(gErr))
		} else {
			graph = g
			mesh.SetStore(graph)
			if n, lErr := mesh.Load(ctx); lErr != nil {
				logger.Warn("failed to load mesh links", zap.Error(lErr))
			} else {
				logger.Info("Loaded mesh links", zap.Int("count", n))
			}
		}
	}

	// RPC server is built before the daemon so diagnostics can see its methods.
	var auth *rpc.Auth
	if cfg.Server.JWTSecret != "" {
		auth = rpc.NewAuth(cfg.Server.JWTSecret)
	}
	var srv *rpc.Server

	daemon := archon.NewDaemon(node, archon.DaemonConfig{
		NodeID:          cfg.Node.ID,
		HeartbeatWindow: cfg.Archon.HeartbeatWindow,
		JournalSize:     cfg.Archon.JournalSize,
		MaxRemotes:      cfg.Archon.MaxRemotes,
		MaxProposals:    cfg.Archon.MaxProposals,
		Diagnostics: archon.DiagnosticsConfig{
			ServedMethods:   func() []string { return srv.Methods() },
			RequiredMethods: sdk.RequiredMethods,
		},
		Stability: mesh.Stability,
		Entropy:   func() float64 { return meshDisorder(mesh.Analyze()) },
	}, logger)
	if bus != nil {
		daemon.SetPublisher(bus)
	}
	srv = rpc.NewServer(node, daemon, mesh, auth, logger)

	// Memory palace, optionally indexed in Qdrant
	palace := archon.NewMemoryPalace(cfg.Archon.ChamberSize, logger)
	var qdrant *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" {
		embedder, eErr := embedding.New(cfg.Embedding)
		if eErr != nil {
			logger.Fatal("embedding provider", zap.Error(eErr))
		}
		qc, qErr := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host:       cfg.Database.Qdrant.Host,
			Port:       cfg.Database.Qdrant.Port,
			Collection: cfg.Database.Qdrant.Collection,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, running without recall", zap.Error(qErr))
		} else {
			qdrant = qc
			palace.SetIndex(vectorstore.NewRecall(qc, embedder, logger))
		}
	}
	daemon.SetPalace(palace)

	watcher := archon.NewAnomalyWatcher(cfg.Archon.AnomalyThreshold, daemon.Sample, logger)
	watcher.SetPalace(palace)
	srv.SetWatcher(watcher)

	if err := daemon.Initialize(); err != nil {
		logger.Fatal("archon initialization failed", zap.Error(err))
	}

	// Initialize gateway
	gw := gateway.NewGateway(logger)
	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.SlackConfig, logger))
	}
	if cfg.Gateway.Discord.Enabled && (cfg.Gateway.Discord.Token != "" || cfg.Gateway.Discord.WebhookURL != "") {
		gw.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.DiscordConfig, logger))
	}
	if len(gw.Adapters()) > 0 {
		gw.SetStatus(func() string {
			diag := daemon.Diagnostics()
			info := node.ChainInfo()
			return fmt.Sprintf("node %s at height %d, health %s (%.2f), %d peers",
				cfg.Node.ID, info.Height, diag.Health(), diag.HealthScore(), daemon.PeerCount())
		})
		if err := gw.ConnectAll(ctx); err != nil {
			logger.Warn("some gateway adapters failed to connect", zap.Error(err))
		}
		daemon.SetAnnouncer(gw)
	}

	// Block production and archon heartbeat
	clk := clock.New(interval, logger)
	clk.AddListener(node)
	clk.AddListener(daemon)
	clk.AddListener(mesh)
	clk.AddListener(clock.NewEvery(anomalySweep, watcher))

	clk.Start(ctx)
	logger.Info("Block production started", zap.Duration("interval", interval))

	port := fmt.Sprintf("%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(srv.Router(), "demiurge-rpc"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Demiurge RPC listening", zap.String("port", port), zap.Bool("dev_mode", cfg.Node.DevMode))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Demiurge node...")
	clk.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	gw.Close()
	if graph != nil {
		graph.Close(shutdownCtx)
	}
	if qdrant != nil {
		qdrant.Close()
	}
	if bus != nil {
		bus.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("flush traces", zap.Error(err))
	}
}
