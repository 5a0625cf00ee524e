package coremain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ar-io/observer-core/internal/assess"
	"github.com/ar-io/observer-core/internal/assess/refcache"
	"github.com/ar-io/observer-core/mlog"
	"github.com/ar-io/observer-core/pkg/pool"
	"github.com/ar-io/observer-core/pkg/safeclose"
)

// Observer wires together the assessment engine (internal/assess) with
// the ambient stack: config, logging, metrics, and the HTTP ops mux. It
// is the coremain-level equivalent of the teacher's Mosdns type.
type Observer struct {
	logger     *zap.Logger
	metricsReg *prometheus.Registry

	httpMux    *http.ServeMux
	httpServer *http.Server

	lastReport atomic.Pointer[assess.ObserverReport]

	sc *safeclose.SafeClose
}

// RunObserver starts the long-lived `run` process: it polls
// EpochHeightSource on EpochPollInterval and runs one report cycle per
// new epoch, exposing /metrics, /healthz, and pprof.
func RunObserver(cfg *Config, v *viper.Viper) error {
	lg, err := mlog.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	o := &Observer{
		logger:     lg,
		metricsReg: prometheus.NewRegistry(),
		httpMux:    http.NewServeMux(),
		sc:         safeclose.NewSafeClose(),
	}
	metrics := assess.NewMetrics(o.metricsReg)

	o.httpMux.Handle("/metrics", promhttp.HandlerFor(o.metricsReg, promhttp.HandlerOpts{}))
	o.httpMux.HandleFunc("/healthz", o.handleHealthz)
	o.httpMux.HandleFunc("/debug/pprof/", pprof.Index)
	o.httpMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	o.httpMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	o.httpMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	o.httpMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	var cfgRef atomic.Pointer[Config]
	cfgRef.Store(cfg)

	if v != nil {
		v.WatchConfig()
		v.OnConfigChange(func(fsnotify.Event) {
			newCfg, err := decodeConfig(v)
			if err != nil {
				lg.Warn("config reload failed, keeping previous config", zap.Error(err))
				return
			}
			lg.Info("config reloaded, effective from next epoch cycle")
			cfgRef.Store(newCfg)
		})
	}

	if addr := cfg.Metrics.Addr; addr != "" {
		o.httpServer = &http.Server{Addr: addr, Handler: o.httpMux}
		o.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			errChan := make(chan error, 1)
			go func() {
				lg.Info("starting ops http server", zap.String("addr", addr))
				errChan <- o.httpServer.ListenAndServe()
			}()
			select {
			case err := <-errChan:
				if err != nil && err != http.ErrServerClosed {
					o.sc.SendCloseSignal(err)
				}
			case <-closeSignal:
				o.httpServer.Close()
			}
		})
	}

	o.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		o.pollEpochs(&cfgRef, metrics, closeSignal)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			lg.Info("received signal, shutting down", zap.Stringer("signal", sig))
			o.sc.SendCloseSignal(nil)
		case <-o.sc.ReceiveCloseSignal():
		}
	}()

	<-o.sc.ReceiveCloseSignal()
	o.sc.Done()
	o.sc.CloseWait()
	return o.sc.Err()
}

// pollEpochs is the daemon's main loop: on EpochPollInterval, it asks the
// EpochHeightSource for the current epoch and runs a report cycle if it
// differs from the last one observed. It uses the pooled-timer pattern
// to avoid allocating a fresh timer on every reconfiguration.
func (o *Observer) pollEpochs(cfgRef *atomic.Pointer[Config], metrics *assess.Metrics, closeSignal <-chan struct{}) {
	cfg := cfgRef.Load()
	timer := pool.GetTimer(cfg.EpochPollInterval)
	defer pool.ReleaseTimer(timer)

	lastEpoch := -1
	for {
		select {
		case <-closeSignal:
			return
		case <-timer.C:
			cfg = cfgRef.Load()
			o.runEpochCycleIfChanged(cfg, metrics, &lastEpoch)
			pool.ResetAndDrainTimer(timer, cfg.EpochPollInterval)
		}
	}
}

func (o *Observer) runEpochCycleIfChanged(cfg *Config, metrics *assess.Metrics, lastEpoch *int) {
	ctx := context.Background()
	builder, epochHeights := newReportBuilder(cfg, o.logger, metrics)

	start, err := epochHeights.GetEpochStartHeight(ctx)
	if err != nil {
		o.logger.Warn("epoch height source failed", zap.Error(err))
		return
	}
	if start == *lastEpoch {
		return
	}
	*lastEpoch = start

	o.logger.Info("starting report cycle", zap.Int("epochStartHeight", start))
	report, err := builder.GenerateReport(ctx)
	if err != nil {
		o.logger.Error("report generation failed", zap.Error(err))
		return
	}
	o.lastReport.Store(&report)
	o.logger.Info("report cycle complete", zap.Int("gateways", len(report.GatewayAssessments)))
}

func (o *Observer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := o.lastReport.Load()
	if report == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"no report generated yet"}`))
		return
	}

	passing := 0
	for _, ga := range report.GatewayAssessments {
		if ga.Pass {
			passing++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"generatedAt":  report.GeneratedAt,
		"gatewayCount": len(report.GatewayAssessments),
		"passingCount": passing,
	})
}

// newReportBuilder wires an assess.ReportBuilder from cfg using the
// static Source stand-ins: concrete chain-backed sources are injected by
// embedders of this package, not constructed here.
func newReportBuilder(cfg *Config, logger *zap.Logger, metrics *assess.Metrics) (*assess.ReportBuilder, assess.EpochHeightSource) {
	timeouts := resolveTimeouts(cfg.Timeouts)

	resolver := assess.NewResolver(timeouts, logger, metrics)
	ownership := assess.NewOwnershipProbe(timeouts, logger)
	cache := newRefCache(cfg, logger)

	hostAssessor := assess.NewHostAssessor(ownership, resolver, cache, cfg.ReferenceGatewayHost, cfg.NameAssessmentConcurrency, logger, metrics)

	hosts := make([]assess.GatewayHostEntry, len(cfg.GatewayHosts))
	for i, h := range cfg.GatewayHosts {
		hosts[i] = assess.GatewayHostEntry{FQDN: h.FQDN, Wallet: h.Wallet}
	}

	epochHeights := assess.StaticEpochHeightSource{}
	builder := assess.NewReportBuilder(assess.ReportBuilderConfig{
		ObserverAddress:    cfg.ObserverAddress,
		EpochHeights:       epochHeights,
		PrescribedNames:    assess.StaticArnsNamesSource{Names: cfg.PrescribedNames},
		ChosenNames:        assess.StaticArnsNamesSource{Names: cfg.ChosenNames},
		GatewayHosts:       assess.StaticGatewayHostsSource{Entries: hosts},
		HostAssessor:       hostAssessor,
		GatewayConcurrency: cfg.GatewayAssessmentConcurrency,
		Logger:             logger,
		Metrics:            metrics,
	})
	return builder, epochHeights
}

func resolveTimeouts(t TimeoutConfig) assess.ResolverTimeouts {
	out := assess.DefaultResolverTimeouts
	if t.DNS > 0 {
		out.DNS = t.DNS
	}
	if t.Connect > 0 {
		out.Connect = t.Connect
	}
	if t.TLS > 0 {
		out.TLS = t.TLS
	}
	if t.Idle > 0 {
		out.Idle = t.Idle
	}
	return out
}

func newRefCache(cfg *Config, logger *zap.Logger) refcache.Backend {
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		return refcache.NewRedisBackend(client, newRunID(), cfg.Cache.RedisTimeout, cfg.Cache.RedisTTL, logger)
	default:
		return refcache.NewMemBackend(cfg.Cache.Size)
	}
}

// newRunID returns a fresh per-GenerateReport identifier used to
// namespace Redis keys so two concurrent report runs sharing the same
// Redis instance never read or overwrite each other's cached entries.
func newRunID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(b[:])
}
