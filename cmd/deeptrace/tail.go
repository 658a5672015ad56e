package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/unixtransport"
	"go.uber.org/zap"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/dtagent"
	"github.com/deeptrace/deeptrace-go/dtcollector"
	"github.com/deeptrace/deeptrace-go/internal/dtutil"
)

type tailConfig struct {
	*rootConfig

	contextID     string
	service       string
	sendBuf       int
	recvBuf       int
	statsInterval time.Duration
	retryInterval time.Duration
}

func (cfg *tailConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'c', LongName: "context" /*        */, Value: ffval.NewValue(&cfg.contextID) /*                            */, Usage: "only records with this context ID"})
	fs.AddFlag(ff.FlagConfig{ShortName: 's', LongName: "service" /*        */, Value: ffval.NewValue(&cfg.service) /*                              */, Usage: "only records from this service"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "send-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.sendBuf, 100) /*                  */, Usage: "remote send buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "recv-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.recvBuf, 100) /*                  */, Usage: "local receive buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "stats-interval" /* */, Value: ffval.NewValueDefault(&cfg.statsInterval, 10*time.Second) /* */, Usage: "stats reporting interval"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "retry-interval" /* */, Value: ffval.NewValueDefault(&cfg.retryInterval, 1*time.Second) /*  */, Usage: "connection retry interval"})
}

func (cfg *tailConfig) Exec(ctx context.Context, args []string) error {
	target, err := dtagent.ParseDSN(cfg.dsn)
	if err != nil {
		return err
	}

	header := http.Header{}
	switch password, hasPassword := target.User.Password(); {
	case target.User.Username() != "" || hasPassword:
		creds := target.User.Username() + ":" + password
		header.Set("authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	case cfg.secret != "":
		header.Set("authorization", "Bearer "+cfg.secret)
	}
	target.User = nil
	target.Path = strings.TrimSuffix(target.Path, "/") + "/stream"

	// The stream client uses the default transport.
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		unixtransport.Register(t)
	}

	client := &dtcollector.StreamClient{
		URI:           target.String(),
		Header:        header,
		Filter:        dtcollector.StreamFilter{ContextID: cfg.contextID, Service: cfg.service},
		SendBuffer:    cfg.sendBuf,
		RetryInterval: cfg.retryInterval,
		StatsInterval: cfg.statsInterval,
		Logger:        cfg.logger.Named("stream"),
		OnStats: func(stats dtcollector.StreamStats) {
			cfg.logger.Debug("stream stats",
				zap.Stringer("broker", stats.Broker),
				zap.Int("stored", stats.Store.Count),
			)
		},
	}

	cfg.logger.Info("streaming", zap.String("uri", client.URI))

	records := make(chan *deeptrace.Record, cfg.recvBuf)

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return client.Stream(ctx, records)
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return cfg.writeRecords(ctx, records)
		}, func(error) {
			cancel()
		})
	}

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	return g.Run()
}

func (cfg *tailConfig) writeRecords(ctx context.Context, records <-chan *deeptrace.Record) error {
	enc := cfg.newEncoder()
	for {
		select {
		case rec := <-records:
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			cfg.logger.Debug("record",
				zap.String("id", rec.ID),
				zap.String("took", dtutil.HumanizeDuration(rec.Duration())),
			)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
