package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/benchrig/benchrig-core/internal/infrastructure/config"
	"github.com/benchrig/benchrig-core/internal/infrastructure/database"
	"github.com/benchrig/benchrig-core/internal/infrastructure/logging"
	"github.com/benchrig/benchrig-core/internal/infrastructure/mqtt"
	"github.com/benchrig/benchrig-core/internal/rig"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests before abandoning them.
const gracefulShutdownTimeout = 10 * time.Second

// defaultCommandTimeout bounds how long an operation handler waits for
// the instrument before answering 504.
const defaultCommandTimeout = 10 * time.Second

// Deps carries everything the API server needs. Logger, Registry and
// Repo are mandatory; the rest enrich the system surfaces when present.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *rig.Registry
	Repo     rig.Repository
	Catalog  *rig.Catalog // driver names on the info surface
	DB       *database.DB // pool stats on the stats surface
	MQTT     *mqtt.Client // connectivity on the info surface

	// Bridge, when set, contributes the MQTT bridge's counters to the
	// stats surface.
	Bridge BridgeStatsProvider

	// ExternalHub, when set, is used instead of creating a hub. Needed
	// when another component also broadcasts through it. The owner runs
	// it; Start will not.
	ExternalHub *Hub

	// CommandTimeout caps the await on read/write/invoke requests.
	// Zero means defaultCommandTimeout.
	CommandTimeout time.Duration

	Version string
}

// Server is the HTTP face of the rig: instrument records, live
// operations, system introspection and the websocket event stream.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   *rig.Registry
	repo       rig.Repository
	catalog    *rig.Catalog
	db         *database.DB
	mqtt       *mqtt.Client
	bridge     BridgeStatsProvider
	cmdTimeout time.Duration
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // stops the internally owned hub
}

// New wires a Server from its dependencies. Nothing listens until
// Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("instrument registry is required")
	}
	if deps.Repo == nil {
		return nil, errors.New("instrument repository is required")
	}

	cmdTimeout := deps.CommandTimeout
	if cmdTimeout <= 0 {
		cmdTimeout = defaultCommandTimeout
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		registry:   deps.Registry,
		repo:       deps.Repo,
		catalog:    deps.Catalog,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		bridge:     deps.Bridge,
		hub:        deps.ExternalHub,
		cmdTimeout: cmdTimeout,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start builds the router and begins serving in the background.
// Listener failures surface in the log; Close performs the graceful
// stop.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// A hub handed in through Deps is run by its owner.
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              s.listenAddr(),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	go s.serve()
	return nil
}

func (s *Server) listenAddr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// serve runs the listener until Close shuts it down.
func (s *Server) serve() {
	var err error
	if s.cfg.TLS.Enabled {
		s.logger.Info("API server starting with TLS",
			"address", s.server.Addr,
			"cert", s.cfg.TLS.CertFile,
		)
		err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		s.logger.Info("API server starting", "address", s.server.Addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server error", "error", err)
	}
}

// Close stops the listener, waiting up to gracefulShutdownTimeout for
// in-flight requests to drain, and cancels the hub if this server owns
// it.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
