package config

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Apply sets the level and formatter of logger.
func (l Logging) Apply(logger *log.Logger) error {
	lvl, err := log.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalid, err)
	}
	logger.SetLevel(lvl)
	if strings.EqualFold(l.Format, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
