package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	"github.com/ducminhle1904/tradeguard/internal/config"
	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/exchange/adapters"
	"github.com/ducminhle1904/tradeguard/internal/exchange/bybit"
	"github.com/ducminhle1904/tradeguard/internal/health"
	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/internal/metrics"
	"github.com/ducminhle1904/tradeguard/internal/monitoring"
	"github.com/ducminhle1904/tradeguard/internal/notifications"
	"github.com/ducminhle1904/tradeguard/internal/orchestrator"
	"github.com/ducminhle1904/tradeguard/internal/risk"
	"github.com/ducminhle1904/tradeguard/internal/safety"
	"github.com/ducminhle1904/tradeguard/internal/sizing"
	"github.com/ducminhle1904/tradeguard/internal/state"
)

// app holds every component of a running guard
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry

	brokers  map[string]exchange.Broker
	primary  exchange.Broker
	stream   *bybit.TickerStream
	monitor  *health.Monitor
	gate     *risk.Gate
	sizer    *sizing.Calculator
	brackets *bracket.Manager
	guard    *orchestrator.Guard

	store     state.Store
	persister *state.Persister
	server    *monitoring.Server
}

// newApp builds and wires the components described by cfg and restores persisted state
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		brokers:  make(map[string]exchange.Broker, len(cfg.Brokers)),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.NewMetrics(a.registry)

	factory := adapters.NewFactory(safety.NewRateLimiter(0, 0))
	for _, bc := range cfg.Brokers {
		b, err := factory.CreateBroker(bc)
		if err != nil {
			return nil, fmt.Errorf("broker %s: %w", bc.Name, err)
		}
		a.brokers[bc.Name] = b
	}
	a.primary = a.brokers[cfg.Primary().Name]

	var notifier notifications.Notifier
	if cfg.Notifications.Enabled {
		notifier = notifications.NewLevelFilter(
			notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID),
			cfg.Notifications.MinLevel)
	}

	var err error
	a.monitor, err = health.NewMonitor(cfg.Health,
		health.WithLogger(log.With("health")),
		health.WithMetrics(mt),
		health.WithNotifier(notifier),
		health.WithCircuitBreakers(safety.NewCircuitBreakerManager()),
		health.WithCallbacks(health.Callbacks{
			OnBrokerDown: func(broker, reason string) {
				log.Critical("Broker %s is down, new orders are paused: %s", broker, reason)
			},
			OnBrokerRecovered: func(broker string) {
				log.Info("Broker %s recovered, trading resumes", broker)
			},
		}))
	if err != nil {
		return nil, err
	}
	for name, b := range a.brokers {
		a.monitor.RegisterBroker(name, b)
	}

	if a.gate, err = risk.NewGate(cfg.Risk, risk.WithLogger(log.With("risk")), risk.WithMetrics(mt)); err != nil {
		return nil, err
	}
	if a.sizer, err = sizing.NewCalculator(cfg.Sizing); err != nil {
		return nil, err
	}

	calls := exchange.Callbacks(a.primary)
	var prices exchange.PriceFetcher = calls
	if pc := cfg.Primary(); pc.Bybit != nil && pc.Bybit.Stream {
		url := pc.Bybit.StreamURL
		if url == "" {
			url = bybit.StreamURL(pc.Bybit.Category, pc.Bybit.Testnet)
		}
		a.stream = bybit.NewTickerStream(url, pc.Bybit.StreamMaxAge, log.With("stream"))
		prices = exchange.FirstPrice{a.stream, calls}
	}

	a.brackets, err = bracket.NewManager(cfg.Brackets,
		bracket.WithLogger(log.With("bracket")),
		bracket.WithMetrics(mt),
		bracket.WithPriceFetcher(prices),
		bracket.WithExecution(calls),
		bracket.WithHooks(orchestrator.ExitHooks(a.gate, a.monitor, a.primary.Name(), log.With("guard"))))
	if err != nil {
		return nil, err
	}

	a.guard = orchestrator.NewGuard(a.primary, a.sizer, a.gate, a.brackets, a.monitor,
		orchestrator.WithLogger(log.With("guard")))

	if a.store, err = state.Open(ctx, cfg.Storage.StoreConfig, log.With("state")); err != nil {
		return nil, err
	}
	a.persister = state.NewPersister(a.store, a.gate, a.brackets, log.With("state")).WithExecutions(a.monitor)
	if err := a.persister.Load(ctx); err != nil {
		a.store.Close()
		return nil, fmt.Errorf("failed to restore state: %w", err)
	}

	if cfg.Server.Enabled {
		a.server = monitoring.NewServer(monitoring.ServerConfig{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}, a.monitor, a.gate, a.brackets,
			monitoring.WithLogger(log.With("server")),
			monitoring.WithGatherer(a.registry),
			monitoring.WithSubmitter(a.guard),
			monitoring.WithPortfolioValue(a.portfolioValue))
	}
	return a, nil
}

// portfolioValue reads the primary broker's portfolio value, 0 when unavailable
func (a *app) portfolioValue() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := a.guard.PortfolioValue(ctx)
	if err != nil {
		a.log.Warning("Portfolio value unavailable: %v", err)
		return 0
	}
	return v
}

// start launches the ticker stream, the watchdog, the bracket monitor and the status server
func (a *app) start(ctx context.Context, errCh chan<- error) {
	if a.stream != nil {
		go a.stream.Run(ctx)
	}
	a.monitor.Start(ctx)
	a.brackets.Start(ctx)
	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				errCh <- fmt.Errorf("status server: %w", err)
			}
		}()
	}
}

// stop shuts components down in reverse order and saves a final snapshot
func (a *app) stop(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.LogError("Server Shutdown", err)
		}
	}
	a.brackets.Stop()
	a.monitor.Stop()

	if err := a.persister.Save(ctx); err != nil {
		a.log.LogError("State Save", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.LogError("State Close", err)
	}
}
