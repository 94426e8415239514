package app

import (
	"github.com/yungbote/cognigraph-backend/internal/platform/envutil"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	Environment string
	Version     string
	ServiceName string
	MetricsAddr string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "cognigraph"),
		MetricsAddr: envutil.String("METRICS_ADDR", ":9090"),
	}
	log.Info("config loaded", "port", cfg.Port, "env", cfg.Environment, "version", cfg.Version)
	return cfg
}
