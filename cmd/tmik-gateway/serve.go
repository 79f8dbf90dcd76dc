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

	"github.com/mkpazon/TmiK/internal/config"
	"github.com/mkpazon/TmiK/internal/httpserver"
	"github.com/mkpazon/TmiK/internal/irc"
	"github.com/mkpazon/TmiK/internal/logging"
	"github.com/mkpazon/TmiK/internal/plugins"
	"github.com/mkpazon/TmiK/internal/reloader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to chat and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(configPath(cmd))
	},
}

func serve(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	logger := logging.New(logging.Cfg{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
	})
	defer logger.Sync()
	logger.Info("starting tmik-gateway", zap.String("config", cfgPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	session := irc.NewSession(cfg, logger.Named("irc"))
	loader := plugins.NewLoader(logger.Named("plugins"))
	container, err := plugins.Build(ctx, session, func(c *plugins.Container) {
		loader.Load(c, cfg.Plugins)
	},
		plugins.WithLogger(logger.Named("container")),
		plugins.WithMetrics(plugins.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	sessionDone := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(sessionDone)
	}()

	srv := httpserver.New(cfg, logger.Named("http"), container, session, reg)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port)
	tls := cfg.HTTP.TLS
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	reloader.OnSIGHUP(ctx, reloadConfig(cfgPath, cfg, logger, session, srv))

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", addr), zap.Bool("tls", tls.Enabled))
		if tls.Enabled {
			serverErrors <- httpSrv.ListenAndServeTLS(tls.Cert, tls.Key)
		} else {
			serverErrors <- httpSrv.ListenAndServe()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-stop:
		logger.Info("shutting down...")
	}

	cancel()
	session.Close()
	<-sessionDone
	container.Close()

	ctxTimeout, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = httpSrv.Shutdown(ctxTimeout)
	logger.Info("bye")
	return runErr
}

type reloadable interface {
	Reload(cfg *config.Config)
}

// reloadConfig re-reads cfgPath on each call and hands the result to targets.
// The live config stays inside the closure; callers must not reuse cfg.
func reloadConfig(cfgPath string, cfg *config.Config, logger *logging.Logger, targets ...reloadable) func() {
	current := cfg
	return func() {
		newCfg, err := config.Load(cfgPath)
		if err == nil {
			err = newCfg.Validate()
		}
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
			return
		}
		if err := logger.SetLevel(newCfg.Logging.Level); err != nil {
			logger.Warn("bad log level", zap.String("level", newCfg.Logging.Level), zap.Error(err))
		}
		for _, t := range targets {
			t.Reload(newCfg)
		}
		if len(newCfg.Plugins) != len(current.Plugins) {
			logger.Warn("plugin chain is fixed at startup; restart to apply plugin changes")
		}
		current = newCfg
		logger.Info("reloaded config")
	}
}
