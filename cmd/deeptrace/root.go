package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"go.uber.org/zap"

	"github.com/deeptrace/deeptrace-go/dtagent"
	"github.com/deeptrace/deeptrace-go/dtclient"
)

type rootConfig struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	dsn       string
	secret    string
	timeout   time.Duration
	logLevel  string
	logFormat string
	output    string

	logger *zap.Logger
}

func (cfg *rootConfig) registerBaseFlags(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'd',
		LongName:    "dsn",
		Value:       ffval.NewValueDefault(&cfg.dsn, "http://localhost:8080"),
		Usage:       "collector URL, may include user:pass@, or use http+unix:///path/to.sock",
		Placeholder: "URL",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:    "secret",
		Value:       ffval.NewValue(&cfg.secret),
		Usage:       "bearer token sent to the collector",
		Placeholder: "SECRET",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "timeout",
		Value:    ffval.NewValueDefault(&cfg.timeout, dtagent.DefaultTimeout),
		Usage:    "timeout for collector requests",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log-level",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "debug", "warn", "error", "none"),
		Usage:       "log level: info, debug, warn, error, none",
		Placeholder: "LEVEL",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:    "log-format",
		Value:       ffval.NewEnum(&cfg.logFormat, "console", "json"),
		Usage:       "log format: console, json",
		Placeholder: "FORMAT",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'o',
		LongName:    "output",
		Value:       ffval.NewEnum(&cfg.output, "ndjson", "prettyjson"),
		Usage:       "output format: ndjson, prettyjson",
		Placeholder: "FORMAT",
	})
}

func (cfg *rootConfig) newClient() (*dtclient.Client, error) {
	agent, err := dtagent.New(cfg.dsn,
		dtagent.WithTimeout(cfg.timeout),
		dtagent.WithSecret(cfg.secret),
		dtagent.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return dtclient.New(agent), nil
}

func (cfg *rootConfig) newEncoder() *json.Encoder {
	enc := json.NewEncoder(cfg.stdout)
	if cfg.output == "prettyjson" {
		enc.SetIndent("", "    ")
	}
	return enc
}
