package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	OutputDir string

	FuzzyThreshold    float64
	FuzzyCandidateCap int

	CostTolerancePct     float64
	CostToleranceWidePct float64
	CostPenaltyPct       float64

	BatchSize int

	PatternMinOccurrences int
	BulkApprovalMinCount  int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		FuzzyThreshold:    getEnvFloat("MATCH_FUZZY_THRESHOLD", 0.75),
		FuzzyCandidateCap: getEnvInt("MATCH_FUZZY_CANDIDATE_CAP", 1500),

		CostTolerancePct:     getEnvFloat("MATCH_COST_TOLERANCE_PCT", 5),
		CostToleranceWidePct: getEnvFloat("MATCH_COST_TOLERANCE_WIDE_PCT", 15),
		CostPenaltyPct:       getEnvFloat("MATCH_COST_PENALTY_PCT", 50),

		BatchSize: getEnvInt("MATCH_BATCH_SIZE", 100),

		PatternMinOccurrences: getEnvInt("PATTERN_MIN_OCCURRENCES", 3),
		BulkApprovalMinCount:  getEnvInt("BULK_APPROVAL_MIN_COUNT", 3),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
