// Package app wires flowcore's topology runtime into a single process: it
// loads configuration, builds the component graph, starts the
// internal/topology.Controller, and serves the internal/admin HTTP surface,
// exposing the same New/Run/Stop lifecycle shape the teacher's App did.
//
// Grounded on internal/app/app.go's original New/Start/Stop/Run sequence
// (config load -> component init -> start in dependency order -> block on
// signal -> graceful stop), generalized from a fixed set of concrete
// components (dispatcher, monitors, sinks) to config.BuildNodesTraced's
// topology.Node list plus one topology.Controller.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/internal/admin"
	"flowcore/internal/config"
	"flowcore/internal/metrics"
	"flowcore/internal/topology"
	"flowcore/internal/tracing"
)

// App owns one running topology plus its admin HTTP surface and optional
// tracer.
type App struct {
	logger     *logrus.Logger
	configPath string

	controller *topology.Controller
	tracer     *tracing.Tracer
	admin      *admin.Server
	sysMetrics *metrics.EnhancedMetrics

	gracePeriod time.Duration
	watchConfig bool
}

// New loads configPath, builds the component graph it describes, and
// returns an App ready to Run. Component instances are constructed lazily
// by the graph (topology.Node.Build), so New does no I/O beyond reading and
// parsing the configuration itself.
func New(configPath string) (*App, error) {
	doc, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("app: loading config: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(config.LogLevelFromEnv("info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	var tracer *tracing.Tracer
	if doc.Tracing.Enabled {
		tracer, err = tracing.New(doc.Tracing, logger)
		if err != nil {
			return nil, fmt.Errorf("app: initializing tracing: %w", err)
		}
	}

	graph, err := buildGraph(doc, logger, tracer)
	if err != nil {
		return nil, err
	}

	controller, err := topology.NewController(graph, logger)
	if err != nil {
		return nil, fmt.Errorf("app: wiring topology: %w", err)
	}

	sysMetrics := metrics.NewEnhancedMetrics(logger)
	controller.SetResourceSampler(sysMetrics)

	var adminServer *admin.Server
	if doc.API.Enabled {
		adminServer = admin.New(admin.Config{Addr: doc.API.Address}, controller, tracer, logger)
	}

	return &App{
		logger:      logger,
		configPath:  configPath,
		controller:  controller,
		tracer:      tracer,
		admin:       adminServer,
		sysMetrics:  sysMetrics,
		gracePeriod: doc.Process.GracePeriod(30 * time.Second),
		watchConfig: doc.Process.WatchConfigFile,
	}, nil
}

func buildGraph(doc *config.Document, logger *logrus.Logger, tracer *tracing.Tracer) (*topology.Graph, error) {
	nodes, err := config.BuildNodesTraced(doc, logger, tracer)
	if err != nil {
		return nil, fmt.Errorf("app: building component graph: %w", err)
	}
	graph, err := topology.Build(nodes)
	if err != nil {
		return nil, fmt.Errorf("app: validating component graph: %w", err)
	}
	return graph, nil
}

// Start spawns every component's task and, if configured, the admin HTTP
// server, then returns without blocking.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("app: starting topology")
	if err := a.sysMetrics.Start(); err != nil {
		a.logger.WithError(err).Warn("app: enhanced metrics collection did not start")
	}
	if err := a.controller.Start(ctx); err != nil {
		return fmt.Errorf("app: starting topology: %w", err)
	}
	if a.admin != nil {
		a.admin.Start()
	}
	a.logger.Info("app: topology started")
	return nil
}

// Reload re-reads configPath, rebuilds the graph it describes, and diffs it
// against the running topology per topology.Controller.Reload's
// add/remove-only semantics (§4.4.5). It is wrapped in a tracing span when
// tracing is enabled.
func (a *App) Reload(ctx context.Context) error {
	reload := func(ctx context.Context) error {
		doc, err := config.Load(a.configPath)
		if err != nil {
			return fmt.Errorf("app: reloading config: %w", err)
		}
		next, err := buildGraph(doc, a.logger, a.tracer)
		if err != nil {
			return err
		}
		return a.controller.Reload(ctx, next, a.gracePeriod)
	}
	if a.tracer != nil {
		return a.tracer.WrapReload(ctx, reload)
	}
	return reload(ctx)
}

// Stop gracefully shuts down the admin server, the topology (draining
// in-flight buffers up to a.gracePeriod), and the tracer, in that order.
// Errors are logged rather than aggregated, matching the teacher's
// best-effort shutdown style.
func (a *App) Stop(ctx context.Context) error {
	a.logger.Info("app: stopping")

	if a.admin != nil {
		if err := a.admin.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("app: admin server shutdown error")
		}
	}

	if err := a.controller.Shutdown(a.gracePeriod); err != nil {
		a.logger.WithError(err).Error("app: topology shutdown error")
	}

	if err := a.sysMetrics.Stop(); err != nil {
		a.logger.WithError(err).Warn("app: enhanced metrics collection did not stop cleanly")
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("app: tracer shutdown error")
		}
	}

	a.logger.Info("app: stopped")
	return nil
}

// Run starts the application and blocks until a termination signal is
// received, reloading on SIGHUP rather than exiting, per SPEC_FULL.md
// §6.7's process surface. If process.watch_config_file is set, it also
// reloads automatically on config file changes via a debounced fsnotify
// watcher.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	if a.watchConfig {
		if cw, err := newConfigWatcher(a, 500*time.Millisecond); err != nil {
			a.logger.WithError(err).Warn("app: config watcher did not start, falling back to SIGHUP-only reload")
		} else {
			go cw.run(ctx)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			a.logger.Info("app: reload signal received")
			if err := a.Reload(ctx); err != nil {
				a.logger.WithError(err).Error("app: reload failed")
			}
			continue
		}
		a.logger.Info("app: shutdown signal received")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), a.gracePeriod)
		defer stopCancel()
		return a.Stop(stopCtx)
	}
	return nil
}
