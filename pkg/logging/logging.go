package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

var logFile *os.File

/*
Init points the package-level charmbracelet logger at a file. The stdio MCP
transport owns stdout, so anything serving tools must log elsewhere. An
empty path keeps stderr.
*/
func Init(logFilePath, level string) error {
	var out io.Writer = os.Stderr

	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
		}

		logFile = f
		out = f
	}

	log.SetOutput(out)
	log.SetReportTimestamp(true)
	log.SetReportCaller(true)

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}

	log.SetLevel(lvl)
	log.Debug("logging initialized", "path", logFilePath, "level", lvl)

	return nil
}

// Close closes the log file.
func Close() {
	if logFile != nil {
		log.SetOutput(os.Stderr)
		logFile.Close()
		logFile = nil
	}
}
