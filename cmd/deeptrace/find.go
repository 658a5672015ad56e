package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type findConfig struct {
	*rootConfig
}

func (cfg *findConfig) Exec(ctx context.Context, args []string) error {
	if len(args) <= 0 {
		return fmt.Errorf("at least one ID is required")
	}

	client, err := cfg.newClient()
	if err != nil {
		return err
	}

	enc := cfg.newEncoder()

	var errs []error
	for _, id := range args {
		rec, err := client.FindTraceByID(ctx, id)
		if err != nil {
			cfg.logger.Warn("find failed", zap.String("id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}

	return errors.Join(errs...)
}
