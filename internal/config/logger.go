package config

import (
    "os"

    "github.com/sirupsen/logrus"
)

// NewLogger builds the process logger.  Production uses JSON lines,
// every other environment the human readable text formatter.
func NewLogger(cfg Config) *logrus.Logger {
    log := logrus.New()
    log.SetOutput(os.Stdout)
    if cfg.Env == "prod" || cfg.Env == "production" {
        log.SetFormatter(&logrus.JSONFormatter{})
    } else {
        log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
    }
    level, err := logrus.ParseLevel(cfg.LogLevel)
    if err != nil {
        log.WithError(err).Warnf("config: unknown LOG_LEVEL %q, using info", cfg.LogLevel)
        level = logrus.InfoLevel
    }
    log.SetLevel(level)
    return log
}
