package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dedupe/internal/active"
	"dedupe/internal/blocking"
	"dedupe/internal/cluster"
	"dedupe/internal/compare"
	"dedupe/internal/config"
	"dedupe/internal/domain"
	"dedupe/internal/labeler/console"
	"dedupe/internal/labeler/replay"
	"dedupe/internal/labeler/tui"
	"dedupe/internal/logging"
	"dedupe/internal/service"
	"dedupe/internal/store/file"
	"dedupe/internal/store/memory"
	"dedupe/internal/store/sqlite"
	"dedupe/internal/summarizer"
)

// app holds what every subcommand needs after config resolution.
type app struct {
	cfg    *config.AppConfig
	logger zerolog.Logger
	store  domain.JudgmentStore
}

// setup loads the config, applies environment and flag overrides, validates
// it and builds the logger.
func setup(cmd *cobra.Command) (*app, error) {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if cmd.Flags().Lookup("input") != nil {
		if v, _ := cmd.Flags().GetString("input"); v != "" {
			cfg.Dataset.Input = v
		}
	}
	if f := cmd.Flags().Lookup("threshold"); f != nil && f.Changed {
		cfg.Cluster.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("config", cfgPath).Str("dataset", cfg.Dataset.Name).Msg("config loaded")
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) openStore(ctx context.Context) (domain.JudgmentStore, error) {
	switch a.cfg.Training.Store {
	case config.StoreSQLite:
		return sqlite.Open(ctx, a.cfg.Training.Path)
	case config.StoreMemory:
		return memory.NewStore(), nil
	default:
		return file.NewStore(a.cfg.Training.Path), nil
	}
}

func (a *app) newLabeler() (active.Labeler, error) {
	switch a.cfg.Training.Labeler {
	case config.LabelerTUI:
		return tui.NewLabeler(), nil
	case config.LabelerReplay:
		return replay.Load(a.cfg.Training.ReplayFile)
	default:
		return console.New(os.Stdout), nil
	}
}

// newService assembles the pipeline. withLabeler is false for commands that
// never ask questions.
func (a *app) newService(ctx context.Context, withLabeler bool) (*service.DedupeService, error) {
	cmp, err := compare.New(a.cfg.Dataset.Fields)
	if err != nil {
		return nil, err
	}
	predicates := make([]blocking.Predicate, len(a.cfg.Blocking.Predicates))
	for i, p := range a.cfg.Blocking.Predicates {
		predicates[i] = blocking.Predicate(p)
	}
	blocker, err := blocking.NewBlocker(a.cfg.Dataset.Fields, predicates, a.cfg.Blocking.MaxBlockSize)
	if err != nil {
		return nil, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	var labeler active.Labeler
	if withLabeler {
		if labeler, err = a.newLabeler(); err != nil {
			return nil, err
		}
	}

	trainer := active.NewTrainer(cmp, blocker, store, active.Options{
		SampleSize: a.cfg.Training.SampleSize,
		L2:         a.cfg.Training.L2,
		MaxQueries: a.cfg.Training.MaxQueries,
	}, a.logger)
	opts := service.Options{
		Input:       a.cfg.Dataset.Input,
		IDSpec:      a.cfg.IDSpec(),
		Fields:      a.cfg.Dataset.Fields,
		FilterRules: a.cfg.FilterRules(),
		Threshold:   a.cfg.Cluster.Threshold,
		OutputPath:  a.cfg.OutputPath(),
		Summary:     a.cfg.Output.Summary,
		Summarizer: summarizer.Options{
			Fields:      a.cfg.FieldNames(),
			SumColumn:   a.cfg.Output.SumColumn,
			DateColumn:  a.cfg.Output.DateColumn,
			ShareColumn: a.cfg.Output.ShareColumn,
		},
	}
	return service.NewDedupeService(trainer, cluster.NewPartitioner(blocker, a.cfg.Cluster.PairFloor), labeler, opts, a.logger), nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing judgment store")
	}
}
