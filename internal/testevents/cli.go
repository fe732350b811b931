package testevents

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/tierlearn/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and a file. If logFile is
// empty, a timestamped filename is generated. The returned closer flushes
// the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "test_log_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), "text"); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return file, nil
}

// ShowHelp prints usage information for the test events tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`tierlearn Event Test Tool
=========================

Submits randomized learning events for many wallet addresses, waits for the
service to apply them and checks every address's engagement counters.

Usage:
  go run ./cmd/test-events [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -users int
        Number of wallet addresses (default 200)
  -events int
        Events per address (default 50)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -drain duration
        How long to wait for the queue to drain (default 2m)
  -output string
        File to save the generated events to (default: not saved)
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message
`)
}
