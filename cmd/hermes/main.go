// Command hermes runs the Hermes API gateway: it loads configuration,
// wires the route cache, plugin chain, balancer, breaker, and proxy, and
// serves HTTP until signalled to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hermesgw/hermes/internal/circuitbreaker"
	"github.com/hermesgw/hermes/internal/config"
	"github.com/hermesgw/hermes/internal/loadbalancer"
	"github.com/hermesgw/hermes/internal/logging"
	"github.com/hermesgw/hermes/internal/metrics"
	"github.com/hermesgw/hermes/internal/plugin"
	"github.com/hermesgw/hermes/internal/proxy"
	"github.com/hermesgw/hermes/internal/ratelimit"
	"github.com/hermesgw/hermes/internal/registry"
	"github.com/hermesgw/hermes/internal/retry"
	"github.com/hermesgw/hermes/internal/route"
	"github.com/hermesgw/hermes/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "hermes.yaml", "path to the gateway configuration file")
	validateOnly := flag.Bool("validate", false, "validate configuration and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("hermes 0.1.0")
		return 0
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hermes: fatal config error: %v\n", err)
		return 1
	}
	if *validateOnly {
		fmt.Println("configuration OK")
		return 0
	}

	zapLogger, closer, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hermes: fatal logging error: %v\n", err)
		return 1
	}
	logging.SetGlobal(zapLogger)
	if closer != nil {
		defer closer.Close()
	}
	defer logging.Sync()

	gw := buildGateway(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw.registry.Bootstrap(ctx)
	go gw.registry.Run(ctx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: gw.gateway,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("hermes listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logging.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("shutdown error", zap.Error(err))
			return 1
		}
		return 0
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "hermes: fatal server error: %v\n", err)
		return 1
	}
}

type wiredGateway struct {
	gateway  *server.Gateway
	registry *registry.Client
}

func buildGateway(cfg *config.Config) *wiredGateway {
	cache := route.NewCache()

	balancer := loadbalancer.New(loadbalancer.Strategy(cfg.LoadBalanceStrategy))
	backendSet := loadbalancer.NewBackendSet()

	reg := registry.New(registry.Options{
		BaseURL:         cfg.RegistryURL,
		PollInterval:    cfg.RegistryPollInterval,
		BootTimeout:     cfg.RegistryBootTimeout,
		PriorityBoost:   cfg.LocalRoutesPriorityBoost,
		FallbackToLocal: cfg.FallbackToLocal,
		LocalRoutesFile: cfg.LocalRoutesFile,
		Backends:        backendSet,
	}, cache)

	limiter := ratelimit.New(cfg.RateLimitGlobalQPS, cfg.RateLimitPerRouteQPS, cfg.RateLimitPerIPQPS, cfg.RateLimitIPMapCapacity)

	collector := metrics.NewPrometheusCollector()

	breakerMgr := circuitbreaker.New(uint32(cfg.CircuitBreakerFailureThreshold), cfg.CircuitBreakerTimeout,
		func(target, state string) { collector.BreakerStateChange(target, state) })

	retryPolicy := retry.DefaultPolicy()
	retryPolicy.MaxRetries = cfg.ProxyMaxRetries

	plugins := []plugin.Plugin{
		plugin.NewAuthPlugin(cfg.AuthPluginEnabled, cfg.AuthDegradeAllow, backendSet, balancer),
		plugin.NewRateLimitPlugin(cfg.RateLimitEnabled, limiter),
		plugin.NewCircuitBreakerPlugin(cfg.CircuitBreakerEnabled, breakerMgr),
		plugin.NewHeaderTransformPlugin(true, plugin.HeaderRules{}),
	}
	chain := plugin.NewChain(plugins)

	gw := server.New(server.Options{
		Cache:        cache,
		Chain:        chain,
		Balancer:     balancer,
		BackendSet:   backendSet,
		Proxy:        proxy.New(),
		RetryPolicy:  retryPolicy,
		ProxyTimeout: cfg.ProxyTimeout,
		Metrics:      collector,
		PromHandler:  promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}),
	})

	return &wiredGateway{gateway: gw, registry: reg}
}
