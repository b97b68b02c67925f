package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// SetupLogging configures the process logger.
func SetupLogging(level string) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	if level == "" {
		return nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)
	return nil
}
