package testevents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/tierlearn/pkg/logger"
)

// Mismatch describes one address whose record differs from its expectation.
type Mismatch struct {
	Address string
	Field   string
	Want    int
	Got     int
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: want %d, got %d", m.Address, m.Field, m.Want, m.Got)
}

// compare returns the fields of got that differ from exp.
func compare(addr string, exp *Expectation, got *Analytics) []Mismatch {
	var out []Mismatch
	check := func(field string, want, have int) {
		if want != have {
			out = append(out, Mismatch{Address: addr, Field: field, Want: want, Got: have})
		}
	}
	check("videos.engaged", exp.Engaged["videos"], got.Videos.Engaged)
	check("courses.engaged", exp.Engaged["courses"], got.Courses.Engaged)
	check("blogs.engaged", exp.Engaged["blogs"], got.Blogs.Engaged)
	check("tests.engaged", exp.Engaged["tests"], got.Tests.Engaged)
	check("calls.engaged", exp.Engaged["calls"], got.Calls.Engaged)
	check("blogs.shareCount", exp.Shares, got.Blogs.ShareCount)
	check("totalContentEngaged", exp.TotalEngaged(), got.TotalContentEngaged)
	return out
}

// verifyResults fetches every address's analytics concurrently and compares
// them with the expectations.
func verifyResults(ctx context.Context, config *Config, expected map[string]*Expectation, stats *Stats) ([]Mismatch, error) {
	logger.Get().Info(ctx, "verifying analytics", logger.Int("users", len(expected)))

	client := newHTTPClient(config.Timeout)
	addrs := make([]string, 0, len(expected))
	for addr, exp := range expected {
		if exp.TotalEngaged() > 0 || exp.Shares > 0 {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)

	var (
		mu         sync.Mutex
		mismatches []Mismatch
		firstErr   error
		wg         sync.WaitGroup
	)
	addrChan := make(chan string, config.Workers*WorkerChannelMultiplier)
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range addrChan {
				var got Analytics
				err := client.getJSON(ctx, config.BaseURL+"/analytics/"+addr, &got)

				mu.Lock()
				switch {
				case err != nil && firstErr == nil:
					firstErr = err
				case err == nil:
					stats.UsersVerified++
					mismatches = append(mismatches, compare(addr, expected[addr], &got)...)
				}
				mu.Unlock()
			}
		}()
	}
	for _, addr := range addrs {
		addrChan <- addr
	}
	close(addrChan)
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("fetch analytics: %w", firstErr)
	}

	seen := make(map[string]bool)
	for _, m := range mismatches {
		seen[m.Address] = true
		if config.Verbose {
			logger.Get().Warn(ctx, "analytics mismatch", logger.String("detail", m.String()))
		}
	}
	stats.UsersMismatched = len(seen)
	return mismatches, nil
}
