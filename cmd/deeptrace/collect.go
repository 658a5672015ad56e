package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/unixtransport/unixproxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deeptrace/deeptrace-go/dtcollector"
)

type collectConfig struct {
	*rootConfig

	listenAddr   string
	capacity     int
	authUser     string
	authPassword string
	authSecret   string
}

func (cfg *collectConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		LongName: "listen-addr",
		Value:    ffval.NewValueDefault(&cfg.listenAddr, "localhost:8080"),
		Usage:    "listen address, host:port or unix:///path/to.sock",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "capacity",
		Value:    ffval.NewValueDefault(&cfg.capacity, dtcollector.DefaultCapacity),
		Usage:    "maximum number of records kept in memory",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "auth-user",
		Value:    ffval.NewValue(&cfg.authUser),
		Usage:    "require basic auth with this username",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "auth-password",
		Value:    ffval.NewValue(&cfg.authPassword),
		Usage:    "require basic auth with this password",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "auth-secret",
		Value:    ffval.NewValue(&cfg.authSecret),
		Usage:    "require this bearer token, if basic auth isn't set",
	})
}

func (cfg *collectConfig) Exec(ctx context.Context, args []string) error {
	if cfg.capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := dtcollector.NewServer(dtcollector.ServerConfig{
		Store:      dtcollector.NewStore(cfg.capacity),
		Username:   cfg.authUser,
		Password:   cfg.authPassword,
		Secret:     cfg.authSecret,
		Logger:     cfg.logger.Named("collector"),
		Registerer: reg,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", collector)

	ln, err := unixproxy.ListenURI(ctx, cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	cfg.logger.Info("listening",
		zap.String("addr", cfg.listenAddr),
		zap.Int("capacity", cfg.capacity),
		zap.Bool("auth", cfg.authUser != "" || cfg.authPassword != "" || cfg.authSecret != ""),
	)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group

	g.Add(func() error {
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	cfg.logger.Info("stopped", zap.Error(err))
	return err
}
