package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultReportName is the workbook file name used when REPORT_XLSX is unset.
const DefaultReportName = "Reporte_Hotspots_Zonal_MultiPais.xlsx"

// Config holds all job settings, populated from environment variables.
// Settings left empty here fall back to the study file.
type Config struct {
	StudyFile string
	RasterDir string
	OutputDir string

	// StudyFileSet is true when StudyFile was chosen explicitly. Only an
	// implicit study file may be absent.
	StudyFileSet bool

	// Overrides of the study file; empty keeps the study value.
	NormalizationMode string
	InversionPoint    string

	LogLevel        string
	LogFormat       string
	HTTPAddr        string // empty disables the health server
	ShutdownTimeout time.Duration

	ReportXLSX      string
	ResultsDB       string // empty disables SQLite persistence
	MetricsTextfile string // empty disables the textfile export

	KafkaBrokers      []string
	KafkaRankingTopic string
	KafkaEnabled      bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	_, studySet := os.LookupEnv("STUDY_FILE")

	cfg := &Config{
		StudyFile:         sharedcfg.EnvOrDefault("STUDY_FILE", "hotspots.yaml"),
		StudyFileSet:      studySet,
		RasterDir:         os.Getenv("RASTER_DIR"),
		OutputDir:         os.Getenv("OUTPUT_DIR"),
		NormalizationMode: os.Getenv("NORMALIZATION_MODE"),
		InversionPoint:    os.Getenv("INVERSION_POINT"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:          os.Getenv("HTTP_ADDR"),
		ShutdownTimeout:   shutdownTimeout,
		ReportXLSX:        os.Getenv("REPORT_XLSX"),
		ResultsDB:         os.Getenv("RESULTS_DB"),
		MetricsTextfile:   os.Getenv("METRICS_TEXTFILE"),
		KafkaBrokers:      brokers,
		KafkaRankingTopic: sharedcfg.EnvOrDefault("KAFKA_RANKING_TOPIC", "climate-hotspot-ranking"),
		KafkaEnabled:      kafkaEnabled,
	}

	if cfg.NormalizationMode != "" {
		if _, err := domain.ParseNormalizationMode(cfg.NormalizationMode); err != nil {
			return nil, fmt.Errorf("invalid NORMALIZATION_MODE: %w", err)
		}
	}
	if cfg.InversionPoint != "" {
		if _, err := domain.ParseInversionPoint(cfg.InversionPoint); err != nil {
			return nil, fmt.Errorf("invalid INVERSION_POINT: %w", err)
		}
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaRankingTopic == "" {
		return nil, errors.New("KAFKA_RANKING_TOPIC is required")
	}

	return cfg, nil
}

// Study loads the study file named by StudyFile and applies the environment
// overrides. The default study is used only when StudyFile was not set
// explicitly and does not exist.
func (c *Config) Study() (*Study, error) {
	s, err := LoadStudy(c.StudyFile)
	switch {
	case err == nil:
	case !c.StudyFileSet && errors.Is(err, os.ErrNotExist):
		s = DefaultStudy()
	default:
		return nil, err
	}
	if c.RasterDir != "" {
		s.RasterDir = c.RasterDir
	}
	if c.OutputDir != "" {
		s.OutputDir = c.OutputDir
	}
	if c.NormalizationMode != "" {
		s.Normalization.Mode = c.NormalizationMode
	}
	if c.InversionPoint != "" {
		s.InversionPoint = c.InversionPoint
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("study %s: %w", c.StudyFile, err)
	}
	return s, nil
}

// ReportPath is where the report workbook is written for study s.
func (c *Config) ReportPath(s *Study) string {
	if c.ReportXLSX != "" {
		return c.ReportXLSX
	}
	return filepath.Join(s.OutputDir, DefaultReportName)
}
