package main

import (
	"context"
	"eegrecords/internal/blob"
	"eegrecords/internal/config"
	"eegrecords/internal/core"
	"eegrecords/internal/logger"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type app struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *core.Metrics
	svc     *core.Service
	store   io.Closer
}

func openApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	log := logger.New(
		logger.WithDebug(cfg.Log.Debug),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithPretty(cfg.Log.Pretty),
		logger.WithWriter(logOut),
	)
	metrics, err := core.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	store, closer, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	blobs, err := blob.Open(ctx, blob.Config{
		Driver: cfg.Blob.Driver,
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          cfg.Blob.S3.Region,
			Bucket:          cfg.Blob.S3.Bucket,
			Endpoint:        cfg.Blob.S3.Endpoint,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
			PathStyle:       cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("open %s file storage: %w", cfg.Blob.Driver, err)
	}
	log.Debug("backends ready", "storage", cfg.Storage.Driver, "blob", blobs.Driver())
	svc := core.NewService(store, core.NewFileStore(blobs),
		core.WithLogger(log),
		core.WithMetricsRecorder(metrics),
		core.WithCacheTTL(cfg.Cache.TTL),
	)
	return &app{cfg: cfg, log: log, metrics: metrics, svc: svc, store: closer}, nil
}

// Close writes the metrics textfile when configured and closes the store.
func (a *app) Close() error {
	var errs []error
	if path := a.cfg.Metrics.TextfilePath; path != "" {
		errs = append(errs, a.metrics.WriteTextfile(path))
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
