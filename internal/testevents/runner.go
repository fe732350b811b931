package testevents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/tierlearn/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// ErrMismatch is returned when a record does not match its expectation.
var ErrMismatch = errors.New("analytics mismatch")

// Run executes the complete event test.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting tierlearn event test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("eventsPerUser", config.EventsPerUser),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate events
	events, err := generateEvents(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("event generation failed: %w", err)
	}

	// Step 3: Submit events concurrently
	baseline, err := applied(ctx, client, config)
	if err != nil {
		return stats, fmt.Errorf("read stats: %w", err)
	}
	accepted := submitEvents(ctx, config, events, stats)

	// Step 4: Wait for the workers to apply every accepted event
	if err := waitForDrain(ctx, client, config, baseline+int64(stats.EventsSuccessful)); err != nil {
		return stats, fmt.Errorf("queue drain failed: %w", err)
	}

	// Step 5: Verify every user's record
	mismatches, err := verifyResults(ctx, config, buildExpectations(events, accepted), stats)
	if err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	// Step 6: Save events to file
	if config.OutputFile != "" {
		if err := saveEventsToFile(ctx, config.OutputFile, events); err != nil {
			logger.Get().Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if len(mismatches) > 0 {
		return stats, fmt.Errorf("%w: %d fields across %d users, first: %s",
			ErrMismatch, len(mismatches), stats.UsersMismatched, mismatches[0])
	}
	logger.Get().Info(ctx, "test completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient, config *Config) error {
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// applied returns how many events the service's workers have finished,
// successfully or not.
func applied(ctx context.Context, client *HTTPClient, config *Config) (int64, error) {
	var stats struct {
		Processed int64 `json:"processed"`
		Failed    int64 `json:"failed"`
	}
	if err := client.getJSON(ctx, config.BaseURL+"/stats", &stats); err != nil {
		return 0, err
	}
	return stats.Processed + stats.Failed, nil
}

// waitForDrain polls /stats until at least target events were applied.
func waitForDrain(ctx context.Context, client *HTTPClient, config *Config, target int64) error {
	ctx, cancel := context.WithTimeout(ctx, config.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(DrainPollInterval)
	defer ticker.Stop()
	for {
		n, err := applied(ctx, client, config)
		if err == nil && n >= target {
			logger.Get().Info(ctx, "queue drained", logger.Any("applied", n))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("applied %d of %d events: %w", n, target, ctx.Err())
		case <-ticker.C:
		}
	}
}

// saveEventsToFile saves the generated events to a JSON file.
func saveEventsToFile(ctx context.Context, filename string, events []Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, eventsPerSecond float64
	if stats.EventsSubmitted > 0 {
		successRate = float64(stats.EventsSuccessful) / float64(stats.EventsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsSuccessful", stats.EventsSuccessful),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("usersVerified", stats.UsersVerified),
		logger.Int("usersMismatched", stats.UsersMismatched),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
