package cmd

import (
	"github.com/sirupsen/logrus"
)

// newLogger creates the run logger. Verbose forces DebugLevel; otherwise the
// LOG_LEVEL resolved at startup applies.
func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(Logger.Out)

	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(Logger.GetLevel())
	}

	return log
}
