// Command translated is the translation core's daemon entrypoint: it
// wires configuration into the three backends, the Quota/License
// Gate, and the Router, then serves a small operator-facing admin
// HTTP surface (status only — actual translate calls are made
// in-process by the embedding application, per spec §1's "core" scope)
// until it receives a shutdown signal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chconn "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/baketa-translate/core/internal/deploy"
	"github.com/baketa-translate/core/pkg/business/xrelay"
	"github.com/baketa-translate/core/pkg/config"
	"github.com/baketa-translate/core/pkg/config/xconf"
	"github.com/baketa-translate/core/pkg/distributed/xdlock"
	"github.com/baketa-translate/core/pkg/lifecycle/xrun"
	"github.com/baketa-translate/core/pkg/localengine"
	"github.com/baketa-translate/core/pkg/mq/xkafka"
	"github.com/baketa-translate/core/pkg/observability/xlog"
	"github.com/baketa-translate/core/pkg/onnxsession"
	"github.com/baketa-translate/core/pkg/quota"
	"github.com/baketa-translate/core/pkg/resilience/xbreaker"
	"github.com/baketa-translate/core/pkg/router"
	"github.com/baketa-translate/core/pkg/storage/xclickhouse"
	"github.com/baketa-translate/core/pkg/storage/xmongo"
	"github.com/baketa-translate/core/pkg/subprocclient"
	"github.com/baketa-translate/core/pkg/subprocconn"
	"github.com/baketa-translate/core/pkg/subprocmgr"
	"github.com/baketa-translate/core/pkg/tokenizer"
	"github.com/baketa-translate/core/pkg/xlate"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the translation core's config file")
	adminAddr := flag.String("admin-addr", ":9191", "admin HTTP surface listen address")
	portRegistryPath := flag.String("port-registry", "/var/run/baketa-translate/ports.json", "subprocess port registry file")
	flag.Parse()

	logger, cleanup, err := xlog.New().SetFormat("json").Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "translated: build logger: %v\n", err)
		return 1
	}
	defer func() { _ = cleanup() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, closeFn, err := bootstrap(ctx, logger, *configPath, *portRegistryPath)
	if err != nil {
		logger.Error(ctx, "bootstrap failed", xlog.Err(err))
		return 1
	}
	defer closeFn()

	group, _ := xrun.NewGroup(ctx, xrun.WithName("translated"), xrun.WithLogger(slog.Default()))
	group.Go(func(ctx context.Context) error { return d.start(ctx) })
	group.Go(func(ctx context.Context) error {
		return serveAdmin(ctx, *adminAddr, d)
	})

	if err := group.Wait(); err != nil {
		logger.Error(ctx, "translated exited with error", xlog.Err(err))
		return 1
	}
	return 0
}

// daemon holds the long-lived pieces the router's backends depend on,
// separate from the router itself so bootstrap's shutdown ordering is
// explicit: subprocess manager stops after the router stops accepting
// new calls.
type daemon struct {
	mgr       *subprocmgr.Manager
	gate      *quota.QuotaGate
	scheduler *quota.Scheduler
	pool      *subprocconn.Pool
	breaker   *subprocclient.BreakerClient
	// router is the assembled entry point for in-process embedders;
	// this daemon itself only serves the admin surface over it.
	router *router.Router
}

// Router returns the assembled Router for in-process embedders that
// link this package directly instead of talking to the admin surface.
func (d *daemon) Router() *router.Router {
	return d.router
}

func (d *daemon) start(ctx context.Context) error {
	if d.mgr == nil {
		<-ctx.Done()
		return nil
	}
	if err := d.mgr.Start(ctx); err != nil {
		return fmt.Errorf("start subprocess manager: %w", err)
	}
	<-ctx.Done()
	return d.mgr.Stop()
}

func bootstrap(ctx context.Context, logger xlog.Logger, configPath, portRegistryPath string) (*daemon, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	backends := map[xlate.BackendKind]router.Backend{}
	var mgr *subprocmgr.Manager
	var pool *subprocconn.Pool
	var breakerClient *subprocclient.BreakerClient

	if cfg.Translation.DefaultEngine == config.EngineSubprocess || cfg.Translation.NLLB200.ServerScriptPath != "" {
		deployType := deploy.Local
		if cfg.Translation.UseExternalServer {
			deployType = deploy.SaaS
		}
		mgr = subprocmgr.New(subprocmgr.Config{
			ScriptPath:  cfg.Translation.NLLB200.ServerScriptPath,
			LangPair:    "ja-en",
			DefaultPort: cfg.Translation.NLLB200.ServerPort,
			Deploy:      deployType,
			Registry:    subprocmgr.NewFileRegistry(portRegistryPath),
		})

		pool = subprocconn.NewPool(subprocconn.PoolConfig{
			Addr:     fmt.Sprintf("127.0.0.1:%d", cfg.Translation.NLLB200.ServerPort),
			Capacity: cfg.Translation.PoolCapacity,
		})
		client := subprocclient.New(pool, cfg.Translation.PoolCapacity)
		breaker := subprocclient.NewBreaker("subprocess", subprocclient.BreakerConfig{
			ConsecutiveFailures: cfg.CircuitBreaker.ConsecutiveFailures,
			CooldownPeriod:      cfg.CircuitBreaker.Cooldown(),
		})
		breakerClient = subprocclient.NewBreakerClient(client, breaker, "subprocess")
		backends[xlate.BackendSubprocess] = router.NewSubprocessBackend(breakerClient)
	}

	var closers []func()

	if cfg.Translation.Local.ModelPath != "" {
		localBackend, closeLocal, err := buildLocalBackend(cfg.Translation)
		if err != nil {
			return nil, nil, fmt.Errorf("build local backend: %w", err)
		}
		backends[xlate.BackendLocal] = localBackend
		closers = append(closers, closeLocal)
	}

	var gate *quota.QuotaGate
	var scheduler *quota.Scheduler
	if cfg.CloudTranslation.Enabled {
		relay, err := xrelay.New(xrelay.Config{
			BaseURL:      cfg.CloudTranslation.RelayServerURL,
			Timeout:      cfg.CloudTranslation.Timeout(),
			MaxRetries:   cfg.CloudTranslation.MaxRetries,
			RetryBackoff: cfg.CloudTranslation.RetryDelay(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build relay client: %w", err)
		}

		gateOpts, closePersistence, err := buildQuotaPersistence(cfg.Quota)
		if err != nil {
			return nil, nil, fmt.Errorf("build quota persistence: %w", err)
		}
		closers = append(closers, closePersistence)

		gate = quota.NewGate(relay, gateOpts...)
		backends[xlate.BackendCloud] = router.NewCloudBackend(relay, cfg.CloudTranslation.PrimaryProviderID)

		if cfg.Quota.RedisAddr != "" {
			var closeRedis func()
			scheduler, closeRedis, err = buildScheduler(cfg.Quota, gate)
			if err != nil {
				return nil, nil, fmt.Errorf("build quota scheduler: %w", err)
			}
			closers = append(closers, closeRedis)
		}

		if cfg.Quota.KafkaBrokers != "" {
			closeKafka, err := publishQuotaEvents(ctx, cfg.Quota, gate)
			if err != nil {
				return nil, nil, fmt.Errorf("build quota event publisher: %w", err)
			}
			closers = append(closers, closeKafka)
		}
	}

	route := xlate.BackendRoute{
		Preference: []xlate.BackendKind{xlate.BackendSubprocess, xlate.BackendCloud, xlate.BackendLocal},
	}

	var gateOpt router.Option
	if gate != nil {
		gateOpt = router.WithGate(gate)
	}
	opts := []router.Option{router.WithLogger(logger), router.WithDefaultRoute(route)}
	if gateOpt != nil {
		opts = append(opts, gateOpt)
	}
	rt := router.New(backends, opts...)

	d := &daemon{mgr: mgr, gate: gate, scheduler: scheduler, pool: pool, breaker: breakerClient, router: rt}
	closeFn := func() {
		if pool != nil {
			pool.Shutdown()
		}
		if scheduler != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			scheduler.Stop(stopCtx)
			cancel()
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return d, closeFn, nil
}

// buildLocalBackend wires Backend-A (spec §4.1-4.3): a shared
// SentencePiece tokenizer pair feeding a single loaded ONNX session
// through the greedy-decode engine. Returns a shutdown func that
// releases the ONNX session.
func buildLocalBackend(cfg config.TranslationConfig) (router.Backend, func(), error) {
	src, err := tokenizer.LoadShared(cfg.Local.SourceTokenizerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load source tokenizer: %w", err)
	}
	tgt, err := tokenizer.LoadShared(cfg.Local.TargetTokenizerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load target tokenizer: %w", err)
	}

	device := onnxsession.DeviceCPU
	if cfg.Local.UseGPU {
		device = onnxsession.DeviceGPU
	}
	session, err := onnxsession.New(onnxsession.Config{
		ModelPath:         cfg.Local.ModelPath,
		SharedLibraryPath: cfg.Local.SharedLibraryPath,
		NumThreads:        cfg.Local.NumThreads,
		Device:            device,
		InputNames:        cfg.Local.InputNames,
		OutputNames:       cfg.Local.OutputNames,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load onnx session: %w", err)
	}

	engineCfg := localengine.DefaultConfig()
	engineCfg.MaxSequenceLength = cfg.MaxSequenceLength
	engineCfg.MaxOutputLength = cfg.MaxOutputLength
	engineCfg.RepetitionPenalty = cfg.RepetitionPenalty

	engine := localengine.New(session, src, tgt, engineCfg)
	return router.NewLocalBackend(engine), session.Close, nil
}

// buildQuotaPersistence wires the Quota/License Gate's durable
// snapshot store (Mongo) and usage audit ledger (ClickHouse) per spec
// §4.10, returning Gate options for whichever of the two are
// configured and a func that closes whatever connections were opened.
func buildQuotaPersistence(cfg config.QuotaConfig) ([]quota.Option, func(), error) {
	var opts []quota.Option
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MongoURI != "" {
		client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closers = append(closers, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		})

		m, err := xmongo.New(client)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("build mongo wrapper: %w", err)
		}
		store := quota.NewMongoLicenseStore(m, cfg.MongoDatabase, cfg.MongoLicenseCollection)
		opts = append(opts, quota.WithLicenseStore(store))
	}

	if cfg.ClickHouseAddr != "" {
		conn, err := chconn.Open(&chconn.Options{
			Addr: []string{cfg.ClickHouseAddr},
			Auth: chconn.Auth{
				Database: cfg.ClickHouseDatabase,
				Username: cfg.ClickHouseUsername,
				Password: cfg.ClickHousePassword,
			},
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })

		ch, err := xclickhouse.New(conn)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("build clickhouse wrapper: %w", err)
		}
		opts = append(opts, quota.WithUsageLedger(quota.NewClickHouseLedger(ch, cfg.ClickHouseTable)))
	}

	return opts, closeAll, nil
}

// buildScheduler wires the Quota/License Gate's cron-driven background
// duties (spec §4.10's periodic sync_to_server and monthly rollover),
// guarded by a Redis-backed distributed lock so only one daemon
// instance in a multi-instance deployment runs them per tick.
func buildScheduler(cfg config.QuotaConfig, gate *quota.QuotaGate) (*quota.Scheduler, func(), error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	closeClient := func() { _ = client.Close() }

	lockFactory, err := xdlock.NewRedisFactory(client)
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("build redis lock factory: %w", err)
	}

	scheduler, err := quota.NewScheduler(gate, lockFactory, gate.Sessions)
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("build scheduler: %w", err)
	}
	if err := scheduler.Start(cfg.BonusSyncCronSpec, cfg.RolloverCronSpec); err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("start scheduler: %w", err)
	}
	return scheduler, closeClient, nil
}

// publishQuotaEvents forwards every gate change event to Kafka for
// downstream billing consumers (DESIGN.md: optional xkafka
// publication), using the gate's global subscription feed rather than
// one per session since the registry has no fixed session set.
func publishQuotaEvents(ctx context.Context, cfg config.QuotaConfig, gate *quota.QuotaGate) (func(), error) {
	producer, err := xkafka.NewTracingProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.KafkaBrokers,
	})
	if err != nil {
		return nil, fmt.Errorf("build kafka producer: %w", err)
	}

	sub := gate.Subscribe("")
	publishCtx, cancel := context.WithCancel(ctx)
	go quota.PublishEvents(publishCtx, producer, cfg.KafkaTopic, sub)

	return func() {
		cancel()
		sub.Close()
		_ = producer.Close()
	}, nil
}

func loadConfig(path string) (config.Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultRoot(), nil
		}
		return config.Root{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := xconf.NewFromBytes(data, xconf.FormatYAML)
	if err != nil {
		return config.Root{}, fmt.Errorf("parse config: %w", err)
	}
	return config.Load(cfg)
}

// serveAdmin runs the read-only operator HTTP surface that
// cmd/translatectl talks to. It is intentionally minimal: status
// only, no translate traffic crosses this surface.
func serveAdmin(ctx context.Context, addr string, d *daemon) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/quota/", func(w http.ResponseWriter, r *http.Request) {
		if d.gate == nil {
			http.Error(w, "cloud backend not configured", http.StatusServiceUnavailable)
			return
		}
		session := r.URL.Path[len("/quota/"):]
		license, err := d.gate.Query(r.Context(), session)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, license)
	})
	mux.HandleFunc("/breaker/status", func(w http.ResponseWriter, r *http.Request) {
		if d.breaker == nil {
			http.Error(w, "subprocess backend not configured", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, breakerStatus{
			Name:   d.breaker.Name(),
			State:  d.breaker.State().String(),
			Counts: d.breaker.Counts(),
		})
	})
	mux.HandleFunc("/pool/stats", func(w http.ResponseWriter, r *http.Request) {
		if d.pool == nil {
			http.Error(w, "subprocess backend not configured", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, d.pool.Stats())
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// breakerStatus is the /breaker/status wire shape translatectl decodes.
type breakerStatus struct {
	Name   string          `json:"name"`
	State  string          `json:"state"`
	Counts xbreaker.Counts `json:"counts"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
