package main

import (
	"context"
	"log/slog"

	"github.com/dgallion1/docsum/internal/config"
	"github.com/dgallion1/docsum/internal/engine"
	"github.com/dgallion1/docsum/internal/model"
	"github.com/dgallion1/docsum/internal/model/provider"
	"github.com/dgallion1/docsum/internal/parser"
	"github.com/dgallion1/docsum/internal/pipeline"
	"github.com/dgallion1/docsum/internal/usage"
)

// newWorker builds the provider, invoker, and engine described by cfg. The
// returned func releases the provider.
func newWorker(ctx context.Context, cfg config.Config, tracker *usage.Tracker, log *slog.Logger) (*pipeline.Worker, *engine.Engine, func(), error) {
	p, closeFn, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	inv, err := model.NewInvoker(p, cfg.InvokerConfig(), tracker, log)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	eng, err := engine.New(inv, cfg.Prompts, engine.Config{
		Segment:           cfg.SegmentConfig(),
		Rules:             cfg.Rules(),
		ReduceCapacity:    cfg.ReduceCapacity,
		MaxReductionDepth: cfg.MaxReductionDepth,
	}, log)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	w := pipeline.NewWorker(eng, parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext}, log)
	log.Info("model configured", "provider", p.Name(), "model", cfg.Model, "mode", cfg.Mode)
	return w, eng, closeFn, nil
}
