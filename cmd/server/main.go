package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"image-bias-audit/backend/internal/api"
	"image-bias-audit/backend/internal/judge"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("load .env")
	}

	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	judges, err := buildJudges()
	if err != nil {
		logrus.Fatalf("configure judges: %v", err)
	}

	cfg := api.Config{
		DBPath:       filepath.Join(dataDir, "image-bias-audit.db"),
		ManifestPath: filepath.Join(baseDir, "data", "manifest.json"),
		ExportPath:   filepath.Join(dataDir, "review_queue.json"),
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		Judges:              judges,
		ConfidenceThreshold: floatEnv("CONFIDENCE_THRESHOLD", 0),
		SignificanceLevel:   floatEnv("SIGNIFICANCE_LEVEL", 0),
	}

	if override := strings.TrimSpace(os.Getenv("AUDIT_DB_PATH")); override != "" {
		cfg.DBPath = override
	}
	if override := strings.TrimSpace(os.Getenv("AUDIT_MANIFEST_PATH")); override != "" {
		cfg.ManifestPath = override
	}
	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "2000"
	}

	logrus.Infof("starting image-bias-audit backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}

// buildJudges assembles the ensemble from environment configuration. Each
// judge is an OpenAI-compatible vision endpoint with its own credentials,
// model, and vote weight.
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
