// Package service assembles the order desk from configuration and runs
// its long-lived tasks.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/orderdesk/params"
	"github.com/uhyunpark/orderdesk/pkg/api"
	"github.com/uhyunpark/orderdesk/pkg/events"
	"github.com/uhyunpark/orderdesk/pkg/lifecycle"
	"github.com/uhyunpark/orderdesk/pkg/sim"
	"github.com/uhyunpark/orderdesk/pkg/storage"
	"github.com/uhyunpark/orderdesk/pkg/sweeper"
)

const (
	shutdownTimeout = 10 * time.Second
	priceVolatility = 0.001
)

type Service struct {
	cfg params.Config
	log *zap.SugaredLogger

	store   storage.Store
	journal *storage.FileJournal
	sink    *events.KafkaTradeSink

	Manager   *lifecycle.Manager
	Hub       *api.Hub
	Sweeper   *sweeper.Sweeper
	Simulator *sim.Simulator // nil unless simulation is enabled

	server   *http.Server
	listener net.Listener
}

// New builds every component. The caller owns the returned Service and
// must Close it after Run returns.
func New(cfg params.Config, logger *zap.SugaredLogger) (*Service, error) {
	s := &Service{cfg: cfg, log: logger}

	switch cfg.Storage.Backend {
	case params.StoreMemory:
		s.store = storage.NewInMemoryStore()
	case params.StorePebble, "":
		ps, err := storage.NewPebbleStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open order store: %w", err)
		}
		ps.Logger = logger
		s.store = ps
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Storage.Backend)
	}

	s.Hub = api.NewHub()
	s.Hub.Logger = logger.Named("ws")
	s.Hub.PingInterval = cfg.API.PingInterval
	s.Hub.WriteTimeout = cfg.API.WriteTimeout

	s.Manager = lifecycle.NewManager(s.store, s.Hub, lifecycle.Config{
		StoreTimeout: cfg.Storage.Timeout,
		HistoryLimit: cfg.Orders.HistoryLimit,
		MatchRetries: cfg.Orders.MatchRetries,
	})
	s.Manager.Logger = logger.Named("orders")

	if cfg.Storage.JournalFile != "" {
		j, err := storage.NewFileJournal(cfg.Storage.JournalFile)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = j
		s.Manager.Journal = j
	}

	if len(cfg.Kafka.Brokers) > 0 {
		s.sink = events.NewKafkaTradeSink(cfg.Kafka.Brokers, cfg.Kafka.TradeTopic)
		s.Manager.Sink = s.sink
		logger.Infow("trade_sink_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.TradeTopic)
	}

	s.Sweeper = sweeper.New(s.Manager, cfg.Orders.SweepInterval)
	s.Sweeper.Logger = logger.Named("sweeper")

	if cfg.Simulation.Enabled {
		feed := sim.NewPriceFeed(decimal.NewFromFloat(cfg.Simulation.InitialPrice), priceVolatility, time.Now().UnixNano())
		gen := sim.NewOrderGenerator(sim.DefaultGeneratorConfig(cfg.Simulation.Asset), feed)
		s.Simulator = sim.New(sim.Config{
			PriceInterval: cfg.Simulation.PriceInterval,
			OrderInterval: cfg.Simulation.OrderInterval,
		}, feed, gen, s.Hub, s.Manager)
		s.Simulator.Logger = logger.Named("sim")
	}

	apiServer := api.NewServer(s.Manager, s.Hub, cfg.API.CORSOrigins)
	apiServer.Logger = logger.Named("api")
	s.server = &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Listen binds the API address. Run calls it when it has not been called.
func (s *Service) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.API.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.API.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr is the bound API address, or "" before Listen.
func (s *Service) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run serves the API and runs the sweeper, liveness checks and (when
// enabled) the simulation until ctx is cancelled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return s.Sweeper.Run(ctx) })
	eg.Go(func() error { return s.Hub.Run(ctx) })
	if s.Simulator != nil {
		eg.Go(func() error { return s.Simulator.Run(ctx) })
	}

	eg.Go(func() error {
		s.log.Infow("api_server_starting", "addr", s.Addr())
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Infow("api_server_stopping")
		return s.server.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Close releases the store, the journal and the trade sink.
func (s *Service) Close() error {
	var errs []error
	if s.sink != nil {
		errs = append(errs, s.sink.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
