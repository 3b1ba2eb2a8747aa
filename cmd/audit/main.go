package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"image-bias-audit/backend/internal/audit"
	"image-bias-audit/backend/internal/consensus"
	"image-bias-audit/backend/internal/disparity"
	"image-bias-audit/backend/internal/judge"
	"image-bias-audit/backend/internal/manifest"
	"image-bias-audit/backend/internal/review"
	"image-bias-audit/backend/internal/store"
)

func main() {
	var (
		dbPath       = flag.String("db", filepath.FromSlash("data/image-bias-audit.db"), "Path to SQLite database")
		manifestPath = flag.String("manifest", filepath.FromSlash("data/manifest.json"), "Path to sample manifest JSON")
		exportPath   = flag.String("export", filepath.FromSlash("data/review_queue.json"), "Path to write the review-queue export")
		workers      = flag.Int("workers", 0, "Worker count (0 = auto)")
		threshold    = flag.Float64("threshold", consensus.DefaultConfidenceThreshold, "Abstention confidence threshold")
		significance = flag.Float64("significance", disparity.DefaultSignificanceLevel, "Chi-square significance level")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("load .env")
	}

	samples, err := manifest.Load(*manifestPath)
	if err != nil {
		logrus.Fatalf("load manifest: %v", err)
	}
	if len(samples) == 0 {
		logrus.Fatal("manifest contains no samples")
	}

	judges, err := buildJudges()
	if err != nil {
		logrus.Fatalf("configure judges: %v", err)
	}

	db, err := store.Open(*dbPath, true)
	if err != nil {
		logrus.Fatalf("open database: %v", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close database")
		}
	}()

	agg, err := consensus.NewAggregator(*threshold)
	if err != nil {
		logrus.Fatalf("aggregator: %v", err)
	}
	calc, err := disparity.NewCalculator(*significance)
	if err != nil {
		logrus.Fatalf("disparity calculator: %v", err)
	}

	queue := review.NewWriter(db)
	evaluator, err := audit.NewEvaluator(judges, agg, db, queue)
	if err != nil {
		logrus.Fatalf("evaluator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	logrus.WithField("samples", len(samples)).Info("starting audit run")

	summary, err := evaluator.RunBatch(ctx, samples, *workers, func(processed, total int, _ consensus.EnsembleResult) {
		if processed%25 == 0 || processed == total {
			logrus.WithFields(logrus.Fields{
				"processed": processed,
				"total":     total,
			}).Info("audit progress")
		}
	})
	queue.Close()
	if err != nil {
		logrus.Fatalf("audit run: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"processed":    summary.Processed,
		"abstained":    summary.Abstained,
		"needs_review": summary.NeedsReview,
		"failed":       summary.Failed,
		"duration":     time.Since(start).Round(time.Second),
	}).Info("audit run complete")

	report, err := evaluator.BuildReport(calc)
	if err != nil {
		logrus.Fatalf("disparity report: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"delta_erasure":      report.Summary.DeltaErasure,
		"delta_substitution": report.Summary.DeltaSubstitution,
		"most_erased":        report.Summary.MostErasedAttribute,
		"bias_detected":      report.Summary.OverallBiasDetected,
	}).Info("headline disparity summary")
	for metric, results := range report.Results {
		for _, impact := range disparity.RankAttributes(results) {
			logrus.WithFields(logrus.Fields{
				"metric":    metric,
				"attribute": impact.Attribute,
				"delta":     impact.Total,
			}).Info("ranked attribute impact")
		}
	}

	if err := writeReviewExport(db, *exportPath); err != nil {
		logrus.Fatalf("write review export: %v", err)
	}
	logrus.WithField("path", *exportPath).Info("review queue exported")
}

func writeReviewExport(db *store.Database, path string) error {
	records, err := db.ListEvaluations("")
	if err != nil {
		return err
	}
	items, err := db.ListReviewItems("")
	if err != nil {
		return err
	}
	export := review.BuildExport(items, review.Analyze(records, items))
	return review.WriteExport(path, export)
}

// buildJudges assembles the ensemble from environment configuration,
// matching the server's judge wiring.
func buildJudges() ([]judge.Judge, error) {
	specs := []struct {
		id           string
		prefix       string
		defaultModel string
	}{
		{id: "qwen3-vl", prefix: "QWEN", defaultModel: "qwen3-vl-plus"},
		{id: "gemini-2-flash", prefix: "GEMINI", defaultModel: "gemini-2.0-flash"},
	}

	judges := make([]judge.Judge, 0, len(specs))
	for _, spec := range specs {
		cfg := judge.Config{
			ID:      spec.id,
			APIKey:  os.Getenv(spec.prefix + "_API_KEY"),
			Model:   envOr(spec.prefix+"_MODEL", spec.defaultModel),
			BaseURL: os.Getenv(spec.prefix + "_BASE_URL"),
			Weight:  floatEnv(spec.prefix+"_WEIGHT", 1.0),
		}
		if timeout := os.Getenv(spec.prefix + "_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				cfg.Timeout = d
			}
		}
		client, err := judge.NewClient(cfg)
		if err != nil {
			if errors.Is(err, judge.ErrDisabled) {
				logrus.WithField("judge", spec.id).Warn("judge disabled - no API key configured")
				continue
			}
			return nil, err
		}
		judges = append(judges, withConfiguredFallback(spec.prefix, cfg, client))
	}

	if len(judges) == 0 {
		return nil, errors.New("no judges configured: set QWEN_API_KEY and/or GEMINI_API_KEY")
	}
	return judges, nil
}

// withConfiguredFallback chains a backup model behind the primary judge
// when <PREFIX>_FALLBACK_MODEL is set. Credentials default to the
// primary's unless overridden.
func withConfiguredFallback(prefix string, cfg judge.Config, primary judge.Judge) judge.Judge {
	model := strings.TrimSpace(os.Getenv(prefix + "_FALLBACK_MODEL"))
	if model == "" {
		return primary
	}

	cfg.ID = cfg.ID + "-fallback"
	cfg.Model = model
	if v := os.Getenv(prefix + "_FALLBACK_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(prefix + "_FALLBACK_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}

	backup, err := judge.NewClient(cfg)
	if err != nil {
		logrus.WithError(err).WithField("judge", cfg.ID).Warn("fallback judge unavailable")
		return primary
	}
	return judge.WithFallback(primary, backup)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
