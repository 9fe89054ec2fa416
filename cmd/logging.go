package cmd

import (
	"os"

	"betmirror/config"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the global logger.
// Production defaults to JSON when no format is set.
func ConfigureLogging(cfg *config.Config) {
	log.SetOutput(os.Stdout)

	if cfg.LogFormat == "json" || (cfg.LogFormat == "" && cfg.IsProduction()) {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
