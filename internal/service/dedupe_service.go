package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dedupe/internal/active"
	"dedupe/internal/cluster"
	"dedupe/internal/domain"
	"dedupe/internal/filter"
	"dedupe/internal/records"
	"dedupe/internal/summarizer"
)

// Pipeline stage names reported by StageError.
const (
	StageLoad      = "load"
	StageFilter    = "filter"
	StageLabel     = "label"
	StageTrain     = "train"
	StageCluster   = "cluster"
	StageWrite     = "write"
	StageSummarize = "summarize"
)

// StageError names the pipeline stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// Options carries the dataset and output settings of one run.
type Options struct {
	Input       string
	IDSpec      records.IDSpec
	Fields      []domain.FieldSpec
	FilterRules []filter.Rule
	Threshold   float64
	OutputPath  string
	Summary     bool
	Summarizer  summarizer.Options
}

// Report describes a full run.
type Report struct {
	Filter   filter.Report
	Label    active.Result
	Clusters int
	Stats    cluster.Stats
	Output   string
	Summary  string
	// Skipped is set when clustering did not run for lack of judgments.
	Skipped bool
}

// ClusterResult is the outcome of the cluster stage.
type ClusterResult struct {
	Table    *records.Table
	Clusters []domain.Cluster
	Stats    cluster.Stats
}

type DedupeService struct {
	trainer     *active.Trainer
	partitioner *cluster.Partitioner
	labeler     active.Labeler
	opts        Options
	logger      zerolog.Logger
}

// NewDedupeService wires the pipeline. labeler may be nil when the caller
// only clusters from stored judgments.
func NewDedupeService(trainer *active.Trainer, partitioner *cluster.Partitioner, labeler active.Labeler, opts Options, logger zerolog.Logger) *DedupeService {
	return &DedupeService{trainer: trainer, partitioner: partitioner, labeler: labeler, opts: opts, logger: logger}
}

// Load reads the input table, applies the filter policy and builds records.
func (s *DedupeService) Load() (*records.Dataset, filter.Report, error) {
	t, err := records.ReadCSV(s.opts.Input)
	if err != nil {
		return nil, filter.Report{}, stageErr(StageLoad, err)
	}
	filtered, report, err := s.Filter(t)
	if err != nil {
		return nil, report, err
	}
	ds, err := records.FromTable(filtered, s.opts.IDSpec, s.opts.Fields)
	if err != nil {
		return nil, report, stageErr(StageLoad, err)
	}
	s.logger.Info().Str("input", s.opts.Input).Int("records", len(ds.Records)).Msg("records loaded")
	return ds, report, nil
}

// Filter applies the configured rules. Without rules the table passes through.
func (s *DedupeService) Filter(t *records.Table) (*records.Table, filter.Report, error) {
	if len(s.opts.FilterRules) == 0 {
		n := len(t.Rows)
		return t, filter.Report{Input: n, Kept: n, Dropped: map[string]int{}}, nil
	}
	out, report, err := filter.Apply(t, s.opts.FilterRules)
	if err != nil {
		return nil, report, stageErr(StageFilter, err)
	}
	ev := s.logger.Info().Int("input", report.Input).Int("kept", report.Kept)
	for _, rule := range report.Rules() {
		ev = ev.Int(rule, report.Dropped[rule])
	}
	ev.Msg("filter applied")
	return out, report, nil
}

// FilterFile filters the input and writes the result to path.
func (s *DedupeService) FilterFile(path string) (filter.Report, error) {
	t, err := records.ReadCSV(s.opts.Input)
	if err != nil {
		return filter.Report{}, stageErr(StageLoad, err)
	}
	out, report, err := s.Filter(t)
	if err != nil {
		return report, err
	}
	if err := records.WriteCSV(path, out); err != nil {
		return report, stageErr(StageWrite, err)
	}
	return report, nil
}

// Label loads the prior judgments and runs a labeling session.
func (s *DedupeService) Label(ctx context.Context, ds *records.Dataset) (active.Result, error) {
	if s.labeler == nil {
		return active.Result{}, stageErr(StageLabel, fmt.Errorf("no labeler configured"))
	}
	if _, err := s.trainer.LoadPriorJudgments(ctx); err != nil {
		return active.Result{}, stageErr(StageLabel, err)
	}
	res, err := s.trainer.Label(ctx, ds.Records, s.labeler)
	if err != nil {
		return res, stageErr(StageLabel, err)
	}
	return res, nil
}

// Cluster fits the classifier on the judgment history, partitions the records
// and writes the clustered table.
func (s *DedupeService) Cluster(ctx context.Context, ds *records.Dataset) (*ClusterResult, error) {
	judgments := s.trainer.Judgments()
	if judgments == nil {
		var err error
		if judgments, err = s.trainer.LoadPriorJudgments(ctx); err != nil {
			return nil, stageErr(StageTrain, err)
		}
	}
	clf, err := s.trainer.Fit(ds.Records, judgments)
	if err != nil {
		return nil, stageErr(StageTrain, err)
	}
	clusters, err := s.partitioner.Partition(clf, ds.Records, s.opts.Threshold)
	if err != nil {
		return nil, stageErr(StageCluster, err)
	}
	stats := s.partitioner.Stats()
	ev := s.logger.Info()
	if len(stats.SkippedBlocks) > 0 {
		ev = s.logger.Warn().Strs("skipped_blocks", stats.SkippedBlocks)
	}
	ev.Int("candidates", stats.Candidates).
		Int("edges", stats.Edges).
		Int("components", stats.Components).
		Int("clusters", stats.Clusters).
		Int("skipped_block_count", len(stats.SkippedBlocks)).
		Float64("threshold", s.opts.Threshold).
		Msg("records partitioned")

	out, err := records.Attach(ds.Table, s.opts.IDSpec, domain.NewAssignment(ds.Records, clusters))
	if err != nil {
		return nil, stageErr(StageWrite, err)
	}
	if err := records.WriteCSV(s.opts.OutputPath, out); err != nil {
		return nil, stageErr(StageWrite, err)
	}
	s.logger.Info().Str("output", s.opts.OutputPath).Msg("clusters written")
	return &ClusterResult{Table: out, Clusters: clusters, Stats: stats}, nil
}

// Summarize aggregates a clustered table and writes the summary next to output.
func (s *DedupeService) Summarize(t *records.Table, output string) ([]summarizer.Summary, string, error) {
	summaries, err := summarizer.Summarize(t, s.opts.Summarizer)
	if err != nil {
		return nil, "", stageErr(StageSummarize, err)
	}
	path := summarizer.SummaryPath(output)
	if err := records.WriteCSV(path, summarizer.Table(summaries, s.opts.Summarizer)); err != nil {
		return nil, "", stageErr(StageWrite, err)
	}
	s.logger.Info().Str("summary", path).Int("clusters", len(summaries)).Msg("summary written")
	return summaries, path, nil
}

// SummarizeFile summarizes an already clustered file.
func (s *DedupeService) SummarizeFile(path string) ([]summarizer.Summary, string, error) {
	t, err := records.ReadCSV(path)
	if err != nil {
		return nil, "", stageErr(StageLoad, err)
	}
	return s.Summarize(t, path)
}

// Run executes the whole pipeline. Missing training data is not an error: the
// judgments are kept and clustering is skipped until more labels exist.
func (s *DedupeService) Run(ctx context.Context) (Report, error) {
	var report Report
	ds, fr, err := s.Load()
	report.Filter = fr
	if err != nil {
		return report, err
	}
	if report.Label, err = s.Label(ctx, ds); err != nil {
		return report, err
	}
	s.logger.Info().
		Str("session", report.Label.Session).
		Int("asked", report.Label.Asked).
		Int("added", report.Label.Added).
		Int("total", report.Label.Total).
		Str("reason", string(report.Label.Reason)).
		Msg("labeling finished")

	res, err := s.Cluster(ctx, ds)
	if err != nil {
		if active.IsInsufficient(err) {
			s.logger.Warn().Err(err).Msg("clustering skipped; label more pairs and rerun")
			report.Skipped = true
			return report, nil
		}
		return report, err
	}
	report.Clusters = len(res.Clusters)
	report.Stats = res.Stats
	report.Output = s.opts.OutputPath

	if s.opts.Summary {
		if _, report.Summary, err = s.Summarize(res.Table, s.opts.OutputPath); err != nil {
			return report, err
		}
	}
	return report, nil
}
