package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/tierlearn/internal/testevents"
)

// Default configuration constants.
const (
	defaultUsers         = 200
	defaultEventsPerUser = 50
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultDrainTimeout  = 2 * time.Minute
	defaultTestTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users      = flag.Int("users", defaultUsers, "Number of wallet addresses")
		events     = flag.Int("events", defaultEventsPerUser, "Events per address")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		drain      = flag.Duration("drain", defaultDrainTimeout, "How long to wait for the queue to drain")
		outputFile = flag.String("output", "", "File to save the generated events to")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	closer, err := testevents.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:       *baseURL,
		Users:         *users,
		EventsPerUser: *events,
		Workers:       *workers,
		Timeout:       *timeout,
		DrainTimeout:  *drain,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	if _, err := testevents.Run(ctx, config); err != nil {
		_, _ = os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		cancel()
		_ = closer.Close()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: deferred calls run explicitly above
	}
}
