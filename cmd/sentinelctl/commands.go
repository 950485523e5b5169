package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/config"
	"github.com/opensource-finance/sentinel/internal/dataset"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/drift"
	"github.com/opensource-finance/sentinel/internal/features"
	"github.com/opensource-finance/sentinel/internal/model"
	"github.com/opensource-finance/sentinel/internal/optimizer"
	"github.com/opensource-finance/sentinel/internal/repository"
)

// loadConfig returns the environment configuration, or the defaults when the
// environment is invalid for the server but the job does not need it.
func loadConfig() *domain.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("using default configuration", "error", err)
		return domain.DefaultConfig()
	}
	return cfg
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// transformArgs derives the model features for every row of a raw dataset.
type transformArgs struct {
	In  string `arg:"--in,required" help:"raw CSV with time, amount and v1..v28"`
	Out string `arg:"--out,required" help:"output CSV with derived columns appended"`
}

func newTransformArgs() *transformArgs {
	return &transformArgs{}
}

func (a *transformArgs) Handle() error {
	raw, err := dataset.ReadFrameFile(a.In)
	if err != nil {
		return err
	}
	gold, err := features.TransformFrame(raw)
	if err != nil {
		return err
	}
	if err := dataset.WriteFrameFile(a.Out, gold); err != nil {
		return err
	}

	slog.Info("dataset transformed",
		"in", a.In,
		"out", a.Out,
		"rows", gold.Len(),
		"columns", len(gold.Columns()),
	)
	return nil
}

// splitArgs cleans a raw dataset and splits it into train and test sets.
type splitArgs struct {
	In        string  `arg:"--in,required" help:"raw labeled CSV"`
	Train     string  `arg:"--train,required" help:"output path for the training set"`
	Test      string  `arg:"--test,required" help:"output path for the test set"`
	Ratio     float64 `arg:"--ratio" help:"share of rows kept for training"`
	KeepEmpty bool    `arg:"--keep-empty" help:"keep missing values instead of filling them with 0"`
}

func newSplitArgs() *splitArgs {
	return &splitArgs{Ratio: dataset.DefaultTrainRatio}
}

func (a *splitArgs) Validate() error {
	if a.Ratio <= 0 || a.Ratio >= 1 {
		return fmt.Errorf("--ratio must be in (0,1), got %v", a.Ratio)
	}
	return nil
}

func (a *splitArgs) Handle() error {
	raw, err := dataset.ReadFrameFile(a.In)
	if err != nil {
		return err
	}

	train, test, summary, err := dataset.Split(raw, dataset.SplitOptions{
		TrainRatio:  a.Ratio,
		FillMissing: !a.KeepEmpty,
	})
	if err != nil {
		return err
	}

	if err := dataset.WriteFrameFile(a.Train, train); err != nil {
		return err
	}
	if err := dataset.WriteFrameFile(a.Test, test); err != nil {
		return err
	}

	return dataset.WriteRecords(os.Stdout, []dataset.SplitSummary{summary})
}

// optimizeArgs searches the cost-minimizing threshold of a model.
type optimizeArgs struct {
	Dataset string  `arg:"--dataset,required" help:"labeled CSV (raw or transformed)"`
	Model   string  `arg:"--model,required" help:"model artifact JSON"`
	CostFN  float64 `arg:"--cost-fn" help:"cost of a missed fraud"`
	CostFP  float64 `arg:"--cost-fp" help:"cost of blocking a legitimate transaction"`
	Workers int     `arg:"--workers" help:"grid points evaluated concurrently"`
	Curve   string  `arg:"--curve" help:"write the full cost curve to this CSV"`
	DryRun  bool    `arg:"--dry-run" help:"do not persist the run"`

	cfg *domain.Config
}

func newOptimizeArgs() *optimizeArgs {
	cfg := loadConfig()
	return &optimizeArgs{
		CostFN:  cfg.Costs.FalseNegative,
		CostFP:  cfg.Costs.FalsePositive,
		Workers: 4,
		cfg:     cfg,
	}
}

func (a *optimizeArgs) Validate() error {
	return domain.CostTable{FalseNegative: a.CostFN, FalsePositive: a.CostFP}.Validate()
}

// curveRow is one CSV row of a cost curve.
type curveRow struct {
	Threshold      float64 `csv:"threshold"`
	Cost           float64 `csv:"cost"`
	TruePositives  int     `csv:"tp"`
	FalsePositives int     `csv:"fp"`
	TrueNegatives  int     `csv:"tn"`
	FalseNegatives int     `csv:"fn"`
}

func (a *optimizeArgs) Handle() error {
	ctx := context.Background()

	artifact, err := model.LoadFile(a.Model)
	if err != nil {
		return err
	}
	frame, err := dataset.ReadFrameFile(a.Dataset)
	if err != nil {
		return err
	}
	set, err := frame.LabeledSet()
	if err != nil {
		return err
	}

	costs := domain.CostTable{FalseNegative: a.CostFN, FalsePositive: a.CostFP}
	result, err := optimizer.Optimize(ctx, set, artifact.Model, costs, optimizer.Options{
		Workers:      a.Workers,
		ModelVersion: artifact.Info.Version,
	})
	if err != nil {
		return err
	}

	if a.Curve != "" {
		if err := writeCurve(a.Curve, result.Curve); err != nil {
			return err
		}
	}

	if !a.DryRun {
		repo, err := repository.New(a.cfg.Repository)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.SaveOptimization(ctx, result); err != nil {
			return err
		}
		slog.Info("optimization run saved", "run_id", result.ID)
	}

	summary := *result
	summary.Curve = nil
	return printJSON(summary)
}

func writeCurve(path string, curve []domain.CostPoint) error {
	rows := make([]curveRow, len(curve))
	for i, p := range curve {
		rows[i] = curveRow{
			Threshold:      p.Threshold,
			Cost:           p.Cost,
			TruePositives:  p.Confusion.TruePositives,
			FalsePositives: p.Confusion.FalsePositives,
			TrueNegatives:  p.Confusion.TrueNegatives,
			FalseNegatives: p.Confusion.FalseNegatives,
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteRecords(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// driftArgs compares a current dataset against the training reference.
type driftArgs struct {
	Reference    string   `arg:"--reference,required" help:"reference CSV, usually the training set"`
	Current      string   `arg:"--current,required" help:"current CSV"`
	Features     []string `arg:"--features,separate" help:"monitored features (repeatable)"`
	Significance float64  `arg:"--significance" help:"p-value under which a feature drifts"`
	Critical     float64  `arg:"--critical-ratio" help:"share of drifting features above which the verdict is CRITICAL"`
	Fraction     float64  `arg:"--fraction" help:"share of current rows sampled"`
	MaxSamples   int      `arg:"--max-samples" help:"cap on rows per side, 0 for none"`
	Seed         int64    `arg:"--seed" help:"sampling seed"`
	DryRun       bool     `arg:"--dry-run" help:"do not persist or publish the report"`

	cfg *domain.Config
}

func newDriftArgs() *driftArgs {
	cfg := loadConfig()
	return &driftArgs{
		Features:     cfg.Monitoring.Features,
		Significance: cfg.Monitoring.SignificanceLevel,
		Critical:     cfg.Monitoring.CriticalRatio,
		Fraction:     cfg.Monitoring.SampleFraction,
		MaxSamples:   cfg.Monitoring.MaxSamples,
		Seed:         cfg.Monitoring.Seed,
		cfg:          cfg,
	}
}

func (a *driftArgs) Validate() error {
	if len(a.Features) == 0 {
		return errors.New("at least one feature must be monitored")
	}
	return nil
}

func readTransformed(path string) (*features.Frame, error) {
	raw, err := dataset.ReadFrameFile(path)
	if err != nil {
		return nil, err
	}
	return features.TransformFrame(raw)
}

func (a *driftArgs) Handle() error {
	ctx := context.Background()

	reference, err := readTransformed(a.Reference)
	if err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	current, err := readTransformed(a.Current)
	if err != nil {
		return fmt.Errorf("current: %w", err)
	}

	mc := a.cfg.Monitoring
	mc.SignificanceLevel = a.Significance
	mc.CriticalRatio = a.Critical
	mc.SampleFraction = a.Fraction
	mc.MaxSamples = a.MaxSamples
	mc.Seed = a.Seed
	cfg := drift.ConfigFrom(mc)

	if a.DryRun {
		report, err := drift.Detect(ctx, reference, current, a.Features, cfg)
		if err != nil {
			return err
		}
		return printJSON(report)
	}

	repo, err := repository.New(a.cfg.Repository)
	if err != nil {
		return err
	}
	defer repo.Close()

	verdicts, err := cache.New(a.cfg.Cache)
	if err != nil {
		return err
	}
	defer verdicts.Close()

	events, err := bus.New(a.cfg.EventBus)
	if err != nil {
		return err
	}
	defer events.Close()

	report, err := drift.NewMonitor(repo, verdicts, events).Run(ctx, reference, current, a.Features, cfg)
	if err != nil {
		return err
	}
	return printJSON(report)
}
