package testevents

import "time"

// Config holds configuration for the event test
type Config struct {
	BaseURL       string        // Base URL of the service
	Users         int           // Number of distinct wallet addresses
	EventsPerUser int           // Events generated for each address
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	DrainTimeout  time.Duration // How long to wait for the queue to drain
	OutputFile    string        // Output file for events, empty to skip
	Verbose       bool          // Enable verbose logging
}

// Event mirrors the POST /events request body.
type Event struct {
	EventID  string  `json:"event_id"`
	Address  string  `json:"address"`
	Kind     string  `json:"kind"`
	ItemID   string  `json:"item_id"`
	Seconds  float64 `json:"seconds_watched,omitempty"`
	Percent  float64 `json:"percent,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Passed   bool    `json:"passed,omitempty"`
	Minutes  float64 `json:"minutes,omitempty"`
	Platform string  `json:"platform,omitempty"`
	TS       string  `json:"ts"`
}

// AckResponse represents the response from event submission
type AckResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// typeCounters is the subset of a per-type analytics block the test checks.
type typeCounters struct {
	Engaged    int `json:"engaged"`
	ShareCount int `json:"shareCount"`
}

// Analytics is the subset of GET /analytics/{address} the test checks.
type Analytics struct {
	UserID              string       `json:"userId"`
	TotalContentEngaged int          `json:"totalContentEngaged"`
	Videos              typeCounters `json:"videos"`
	Courses             typeCounters `json:"courses"`
	Blogs               typeCounters `json:"blogs"`
	Tests               typeCounters `json:"tests"`
	Calls               typeCounters `json:"calls"`
}

// Expectation is what one address's record must show once every accepted
// event has been applied.
type Expectation struct {
	Engaged map[string]int // distinct items engaged per content type
	Shares  int            // accepted blog_shared events
}

// TotalEngaged returns the sum of engaged items across types.
func (e Expectation) TotalEngaged() int {
	total := 0
	for _, n := range e.Engaged {
		total += n
	}
	return total
}

// Stats holds test statistics
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsSuccessful int
	EventsDuplicate  int
	EventsFailed     int
	UsersVerified    int
	UsersMismatched  int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
