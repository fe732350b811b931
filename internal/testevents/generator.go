package testevents

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tierlearn/pkg/logger"
)

// kindContentType maps each event kind to the record block it updates.
var kindContentType = map[string]string{ //nolint:gochecknoglobals // fixed table
	"video_watched":   "videos",
	"course_progress": "courses",
	"test_completed":  "tests",
	"blog_read":       "blogs",
	"blog_shared":     "blogs",
	"call_attended":   "calls",
}

var kinds = []string{ //nolint:gochecknoglobals // fixed table
	"video_watched", "course_progress", "test_completed",
	"blog_read", "blog_shared", "call_attended",
}

var sharePlatforms = []string{"x", "farcaster", "telegram"} //nolint:gochecknoglobals // fixed table

// randomInt returns a uniform integer in [0, n) using crypto/rand.
func randomInt(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// randomAddress returns a random 0x-prefixed 20 byte hex address.
func randomAddress() string {
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}

// generateEvents creates EventsPerUser events for each of Users fresh
// addresses.
func generateEvents(ctx context.Context, config *Config, stats *Stats) ([]Event, error) {
	logger.Get().Info(ctx, "generating events",
		logger.Int("users", config.Users),
		logger.Int("eventsPerUser", config.EventsPerUser))

	events := make([]Event, 0, config.Users*config.EventsPerUser)
	for u := 0; u < config.Users; u++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during event generation: %w", err)
		}
		addr := randomAddress()
		for i := 0; i < config.EventsPerUser; i++ {
			events = append(events, generateSingleEvent(addr, kinds[randomInt(len(kinds))], randomInt(catalogueSize)))
		}
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events successfully", logger.Int("count", len(events)))
	return events, nil
}

// buildExpectations derives what each address's record must show from the
// events the service accepted.
func buildExpectations(events []Event, accepted []bool) map[string]*Expectation {
	expected := make(map[string]*Expectation)
	touched := make(map[string]bool)
	for i, ev := range events {
		exp, ok := expected[ev.Address]
		if !ok {
			exp = &Expectation{Engaged: make(map[string]int)}
			expected[ev.Address] = exp
		}
		if accepted[i] {
			exp.observe(ev, touched)
		}
	}
	return expected
}

// observe folds one event into the expectation. touched holds the
// address/type/item keys already engaged.
func (e *Expectation) observe(ev Event, touched map[string]bool) {
	if ev.Kind == "blog_shared" {
		e.Shares++
		return
	}
	ct := kindContentType[ev.Kind]
	key := ev.Address + "/" + ct + "/" + ev.ItemID
	if !touched[key] {
		touched[key] = true
		e.Engaged[ct]++
	}
}

// generateSingleEvent creates one event of kind about item index n.
func generateSingleEvent(addr, kind string, n int) Event {
	ct := kindContentType[kind]
	ev := Event{
		EventID: uuid.NewString(),
		Address: addr,
		Kind:    kind,
		ItemID:  fmt.Sprintf("%s-%d", ct, n+1),
		TS:      time.Now().UTC().Format(time.RFC3339),
	}
	switch kind {
	case "video_watched":
		ev.Seconds = float64(30 + randomInt(600))
		ev.Percent = float64(randomInt(101))
	case "course_progress":
		ev.Percent = float64(randomInt(101))
	case "test_completed":
		ev.Score = float64(randomInt(101))
		ev.Passed = ev.Score >= 70
	case "blog_read", "call_attended":
		ev.Minutes = float64(1 + randomInt(45))
	case "blog_shared":
		ev.Platform = sharePlatforms[randomInt(len(sharePlatforms))]
	}
	return ev
}
