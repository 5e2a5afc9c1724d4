// GoRanging daemon -- multi-technology proximity/distance ranging service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/go-ranging/goranging/internal/aggregator"
	"github.com/go-ranging/goranging/internal/codec"
	"github.com/go-ranging/goranging/internal/config"
	rangingmetrics "github.com/go-ranging/goranging/internal/metrics"
	"github.com/go-ranging/goranging/internal/negotiator"
	"github.com/go-ranging/goranging/internal/ranging"
	"github.com/go-ranging/goranging/internal/selector"
	"github.com/go-ranging/goranging/internal/simadapter"
	"github.com/go-ranging/goranging/internal/transport"
	appversion "github.com/go-ranging/goranging/internal/version"
)

// shutdownTimeout is the maximum time to wait for the HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// drainTimeout bounds how long the daemon waits for open peer sessions to
// stop gracefully before forcefully closing them.
const drainTimeout = 5 * time.Second

// dialTimeout bounds connecting to an initiator-role peer's OOB transport
// address.
const dialTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("rangingd starting",
		slog.String("version", appversion.Version),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("peers", len(cfg.Peers)),
	)

	reg := prometheus.NewRegistry()
	collector := rangingmetrics.NewCollector(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agg := aggregator.New(ctx, logger)

	if err := runServers(ctx, cfg, agg, collector, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("rangingd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("rangingd stopped")
	return 0
}

// runServers wires the HTTP servers, the metrics-forwarding goroutine, the
// declarative peer connections, and graceful shutdown under a single
// errgroup with a signal-aware context (spec 4.H, spec 6.5).
func runServers(
	ctx context.Context,
	cfg *config.Config,
	agg *aggregator.Aggregator,
	collector *rangingmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	g, gCtx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	httpSrv := newHTTPServer(cfg.HTTP, agg, logger)

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.HTTP.Addr))
		return listenAndServe(gCtx, httpSrv, cfg.HTTP.Addr)
	})

	g.Go(func() error {
		forwardEventsToMetrics(gCtx, agg, collector, logger)
		return nil
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, agg, logger)
		return nil
	})

	connectDeclaredPeers(gCtx, g, cfg, agg, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, agg, logger, httpSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Declarative peers -- negotiation + session lifecycle
// -------------------------------------------------------------------------

// connectDeclaredPeers starts one goroutine per configured peer: initiator
// peers dial and negotiate, responder peers listen and accept (spec 4.E).
func connectDeclaredPeers(ctx context.Context, g *errgroup.Group, cfg *config.Config, agg *aggregator.Aggregator, logger *slog.Logger) {
	localCaps := localCapabilities(cfg.Ranging)

	for _, pc := range cfg.Peers {
		pc := pc

		peerID, err := pc.DeviceId()
		if err != nil {
			logger.Error("skipping peer with invalid peer_id", slog.String("peer_id", pc.PeerID), slog.String("error", err.Error()))
			continue
		}
		role, err := pc.DeviceRole()
		if err != nil {
			logger.Error("skipping peer with invalid role", slog.String("peer_id", pc.PeerID), slog.String("error", err.Error()))
			continue
		}

		plogger := logger.With(slog.String("peer", peerID.String()), slog.String("addr", pc.Addr))

		switch role {
		case ranging.RoleInitiator:
			g.Go(func() error {
				runInitiatorPeer(ctx, cfg, agg, peerID, pc.Addr, localCaps, plogger)
				return nil
			})
		case ranging.RoleResponder:
			g.Go(func() error {
				runResponderListener(ctx, cfg, agg, peerID, pc.Addr, localCaps, plogger)
				return nil
			})
		}
	}
}

// runInitiatorPeer dials pc's address, negotiates, and opens a session,
// retrying with backoff until ctx is cancelled.
func runInitiatorPeer(ctx context.Context, cfg *config.Config, agg *aggregator.Aggregator, peerID ranging.DeviceId, addr string, localCaps map[ranging.TechnologyTag]ranging.TechCapability, logger *slog.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := negotiateAndOpenAsInitiator(ctx, cfg, agg, peerID, addr, localCaps, logger); err != nil {
			logger.Warn("initiator negotiation failed, retrying", slog.String("error", err.Error()), slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second

		// Negotiation succeeded and the session is open; wait for it to
		// close before attempting to reconnect.
		if sess, ok := agg.Lookup(peerID); ok {
			<-sess.Done()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func negotiateAndOpenAsInitiator(ctx context.Context, cfg *config.Config, agg *aggregator.Aggregator, peerID ranging.DeviceId, addr string, localCaps map[ranging.TechnologyTag]ranging.TechCapability, logger *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	handle, err := transport.DialTCPHandle(dialCtx, addr, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	connCtx, connCancel := context.WithCancel(ctx)
	conn := transport.NewConnection(connCtx, transport.OobHandle{PeerID: peerID}, handle, logger)
	go handle.Run(connCtx, conn)

	constraints, err := cfg.Ranging.Constraints()
	if err != nil {
		connCancel()
		return fmt.Errorf("build constraints: %w", err)
	}

	outcome, err := negotiator.RunInitiator(ctx, conn, negotiator.InitiatorConfig{
		LocalCapabilities: localCaps,
		Requested:         constraints.AllowedTechnologies,
		Constraints:       constraints,
		BuildParams:       buildRawParams,
		StartNow: func(sel selector.Result) ranging.TechnologyBitmap {
			return techsToStart(sel.Selections)
		},
	})
	if err != nil {
		connCancel()
		_ = handle.Close()
		return fmt.Errorf("negotiate with %s: %w", addr, err)
	}

	sessCfg := ranging.SessionConfig{MeasurementLimit: cfg.Ranging.MeasurementLimit}
	adapters := adaptersForSelections(peerID, outcome.Selections)

	if _, err := agg.OpenSession(connCtx, aggregator.OpenSessionConfig{
		Peer:          peerID,
		SessionConfig: sessCfg,
		Adapters:      adapters,
		Factory:       simadapter.New,
	}); err != nil {
		connCancel()
		_ = handle.Close()
		return fmt.Errorf("open session for %s: %w", addr, err)
	}

	logger.Info("peer session negotiated and opened", slog.Int("technologies", len(adapters)))
	return nil
}

// runResponderListener accepts inbound OOB connections for one declared
// responder-role peer and drives the responder FSM over each.
func runResponderListener(ctx context.Context, cfg *config.Config, agg *aggregator.Aggregator, peerID ranging.DeviceId, addr string, localCaps map[ranging.TechnologyTag]ranging.TechCapability, logger *slog.Logger) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		logger.Error("failed to listen for responder peer", slog.String("error", err.Error()))
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	constraints, err := cfg.Ranging.Constraints()
	if err != nil {
		logger.Error("failed to build constraints", slog.String("error", err.Error()))
		return
	}
	caps := make([]ranging.TechCapability, 0, len(localCaps))
	for _, c := range localCaps {
		caps = append(caps, c)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("accept failed", slog.String("error", err.Error()))
				return
			}
		}

		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			_ = conn.Close()
			continue
		}

		go handleResponderConn(ctx, agg, peerID, tcpConn, constraints, caps, logger)
	}
}

func handleResponderConn(ctx context.Context, agg *aggregator.Aggregator, peerID ranging.DeviceId, tcpConn *net.TCPConn, constraints ranging.OobRangingConstraints, caps []ranging.TechCapability, logger *slog.Logger) {
	handle, err := transport.NewTCPHandleFromConn(tcpConn, logger)
	if err != nil {
		logger.Warn("failed to wrap inbound connection", slog.String("error", err.Error()))
		_ = tcpConn.Close()
		return
	}

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	obConn := transport.NewConnection(connCtx, transport.OobHandle{PeerID: peerID}, handle, logger)
	go handle.Run(connCtx, obConn)
	defer func() { _ = handle.Close() }()

	var negotiated codec.SetConfiguration

	rcfg := negotiator.ResponderConfig{
		Supported:     constraints.AllowedTechnologies,
		PriorityOrder: constraints.AllowedTechnologies,
		Capabilities:  caps,
		ValidateConfig: func(m codec.SetConfiguration) ranging.TechnologyBitmap {
			negotiated = m
			return m.TechsSet & constraints.AllowedTechnologies
		},
		OnStart: func(techs ranging.TechnologyBitmap) ranging.TechnologyBitmap {
			started := techs & negotiated.TechsSet
			adapters := make(map[ranging.TechnologyTag]ranging.AdapterConfig)
			for _, tech := range started.Technologies() {
				adapters[tech] = ranging.AdapterConfig{
					Peer:       peerID,
					Technology: tech,
					Raw:        negotiated.Params[tech],
					IntervalMs: ranging.IntervalMs(ranging.RateNormal, tech),
				}
			}
			if _, err := agg.OpenSession(connCtx, aggregator.OpenSessionConfig{
				Peer:          peerID,
				SessionConfig: ranging.SessionConfig{},
				Adapters:      adapters,
				Factory:       simadapter.New,
			}); err != nil {
				logger.Warn("failed to open responder session", slog.String("error", err.Error()))
				return 0
			}
			return started
		},
		OnStop: func(techs ranging.TechnologyBitmap) ranging.TechnologyBitmap {
			if err := agg.CloseSession(peerID); err != nil {
				logger.Warn("failed to close responder session", slog.String("error", err.Error()))
			}
			return techs
		},
	}

	if err := negotiator.RunResponder(ctx, obConn, rcfg); err != nil {
		logger.Warn("responder negotiation ended", slog.String("error", err.Error()))
	}
}

// buildRawParams builds placeholder RawRangingParams for each selected
// technology. Concrete UWB session keys, addresses, and channels are a
// radio-driver concern (spec.md's explicit Non-goal); the daemon only
// needs to exercise the wire protocol and the simulated adapter, so the
// selector's choices (UWB config id, channel and preamble; RTT periodic
// flag; CS security level) and each interval are populated and the rest
// (addresses, session id, session key, country code) are left zero.
func buildRawParams(sel selector.Result) (map[ranging.TechnologyTag]ranging.RawRangingParams, error) {
	out := make(map[ranging.TechnologyTag]ranging.RawRangingParams, len(sel.Selections))
	for _, s := range sel.Selections {
		switch s.Technology {
		case ranging.TechUWB:
			out[s.Technology] = ranging.RawRangingParams{UWB: &ranging.UWBParams{
				ConfigID: s.ConfigID, Channel: s.Channel, PreambleIndex: s.PreambleIndex,
				IntervalMs: uint16(s.IntervalMs),
			}}
		case ranging.TechRTT:
			out[s.Technology] = ranging.RawRangingParams{RTT: &ranging.RTTParams{
				PeriodicRanging: s.PeriodicRanging, IntervalMs: uint16(s.IntervalMs),
			}}
		case ranging.TechCS:
			out[s.Technology] = ranging.RawRangingParams{CS: &ranging.BTParams{
				SecurityLevel: s.SecurityLevel, IntervalMs: uint16(s.IntervalMs),
			}}
		case ranging.TechRSSI:
			out[s.Technology] = ranging.RawRangingParams{RSSI: &ranging.BTParams{IntervalMs: uint16(s.IntervalMs)}}
		}
	}
	return out, nil
}

// techsToStart asks to start every technology the selector chose, as soon
// as set-configuration succeeds.
func techsToStart(selections []selector.TechSelection) ranging.TechnologyBitmap {
	var b ranging.TechnologyBitmap
	for _, s := range selections {
		b = b.Set(s.Technology)
	}
	return b
}

func adaptersForSelections(peer ranging.DeviceId, selections []selector.TechSelection) map[ranging.TechnologyTag]ranging.AdapterConfig {
	out := make(map[ranging.TechnologyTag]ranging.AdapterConfig, len(selections))
	for _, s := range selections {
		out[s.Technology] = ranging.AdapterConfig{
			Peer:       peer,
			Technology: s.Technology,
			IntervalMs: s.IntervalMs,
		}
	}
	return out
}

// localCapabilities builds this device's advertised TechCapability set from
// the configured allowed technologies. Channel/preamble/config-ID/security
// bitmaps advertise "everything" (all bits set) since no real radio
// hardware backs them; the simulated adapter that actually runs ignores
// these fields.
func localCapabilities(rc config.RangingConfig) map[ranging.TechnologyTag]ranging.TechCapability {
	bitmap, err := config.ParseTechnologyBitmap(rc.AllowedTechnologies)
	if err != nil {
		return nil
	}
	out := make(map[ranging.TechnologyTag]ranging.TechCapability, len(rc.AllowedTechnologies))
	for _, tech := range bitmap.Technologies() {
		out[tech] = ranging.TechCapability{
			Technology:           tech,
			SupportedChannels:    0xFFFFFFFF,
			SupportedPreambles:   0xFFFFFFFF,
			SupportedConfigIDs:   0xFFFFFFFF,
			MinRangingIntervalMs: uint16(rc.FastestInterval.Milliseconds()),
			SupportedRoles:       1<<uint(ranging.RoleInitiator-1) | 1<<uint(ranging.RoleResponder-1),
			SupportedSecurityLevels: 0x0F,
			SupportsPeriodic:        true,
			SupportedBandwidths:     0xFFFF,
		}
	}
	return out
}

// -------------------------------------------------------------------------
// Metrics forwarding
// -------------------------------------------------------------------------

// forwardEventsToMetrics consumes the aggregator's lifecycle event stream
// and updates the Prometheus collector, until ctx is cancelled.
func forwardEventsToMetrics(ctx context.Context, agg *aggregator.Aggregator, collector *rangingmetrics.Collector, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-agg.Events():
			peer := ev.Peer.String()
			switch ev.Kind {
			case aggregator.EventOpened:
				collector.RegisterSession(peer)
			case aggregator.EventClosed:
				collector.UnregisterSession(peer)
				collector.RecordSessionClosed(peer, ev.Reason.String())
			case aggregator.EventResults:
				collector.IncMeasurements(peer, ev.Technology.String())
			case aggregator.EventOpenFailed:
				collector.IncNegotiationFailures(peer, ev.Reason.String())
			}
			logger.Debug("aggregator event", slog.String("peer", peer), slog.String("kind", ev.Kind.String()))
		}
	}
}

// -------------------------------------------------------------------------
// Systemd Integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled", slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload -- log level only; peer set changes require a restart
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, agg *aggregator.Aggregator, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig reloads only the dynamic log level. Declarative peer
// connections are established once at startup; a changed peer list
// requires a restart, since each peer owns a long-lived dial/listen
// goroutine started from connectDeclaredPeers.
func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, agg *aggregator.Aggregator, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	drainCtx, drainCancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	if err := agg.Drain(drainCtx); err != nil {
		logger.Warn("session drain did not complete cleanly", slog.String("error", err.Error()))
	}
	drainCancel()
	agg.Close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newHTTPServer creates the plain JSON introspection endpoint that
// replaces the teacher's ConnectRPC control-plane surface (spec 6.5):
// session listing and a liveness check, served over h2c so the same
// plaintext-HTTP/2 idiom the teacher uses for its gRPC listener applies
// here too.
func newHTTPServer(cfg config.HTTPConfig, agg *aggregator.Aggregator, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, _ *http.Request) {
		snapshots := agg.Sessions()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshots); err != nil {
			logger.Warn("failed to encode sessions response", slog.String("error", err.Error()))
		}
	})

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Config + Logging
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
