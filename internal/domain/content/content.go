// Package content describes the tier-gated content catalogue: the closed set
// of content types, how each one is queried, sorted and limited, and the item
// and lesson shapes read from the document store.
package content

import (
	"fmt"
	"strings"
)

// Type is one of the five content types served to members.
type Type int

// Content types.
const (
	Videos Type = iota
	Courses
	Blogs
	Tests
	Calls
)

// All lists every content type in display order.
var All = []Type{Videos, Courses, Blogs, Tests, Calls}

// DefaultMaxTier is the highest membership tier accepted unless configured
// otherwise.
const DefaultMaxTier = 10

// ValidTier reports whether tier is a membership tier between 1 and maxTier.
func ValidTier(tier, maxTier int) bool {
	return tier >= 1 && tier <= maxTier
}

// SortRule orders a content feed.
type SortRule int

// Sort rules.
const (
	// NewestFirst orders by date descending.
	NewestFirst SortRule = iota
	// SoonestFirst orders by date ascending (upcoming calls).
	SoonestFirst
	// EasiestThenNewest orders by difficulty ascending, then date descending.
	EasiestThenNewest
)

// Comparator selects how an item's tier is compared with a requested tier.
type Comparator string

// Comparators.
const (
	// Exact matches items belonging to exactly the requested tier.
	Exact Comparator = "=="
	// UpTo matches items belonging to the requested tier or any lower one.
	UpTo Comparator = "<="
)

// Descriptor carries everything the repository needs to serve one content type.
type Descriptor struct {
	Type       Type
	Name       string
	Collection string
	// TierField is the document field holding tier membership.
	TierField string
	// TierArray is true when TierField holds a list of tiers instead of a scalar.
	TierArray bool
	Sort      SortRule
	// FeedLimit caps the dashboard feed for this type.
	FeedLimit int
	// FallbackCount is reported when every count path fails.
	FallbackCount int
}

var descriptors = [...]Descriptor{
	Videos:  {Type: Videos, Name: "videos", Collection: "videos", TierField: "tier", Sort: NewestFirst, FeedLimit: 3, FallbackCount: 10},
	Courses: {Type: Courses, Name: "courses", Collection: "courses", TierField: "tiers", TierArray: true, Sort: NewestFirst, FeedLimit: 3, FallbackCount: 5},
	Blogs:   {Type: Blogs, Name: "blogs", Collection: "blogs", TierField: "tier", Sort: NewestFirst, FeedLimit: 3, FallbackCount: 8},
	Tests:   {Type: Tests, Name: "tests", Collection: "tests", TierField: "tier", Sort: EasiestThenNewest, FeedLimit: 6, FallbackCount: 5},
	Calls:   {Type: Calls, Name: "calls", Collection: "calls", TierField: "tier", Sort: SoonestFirst, FeedLimit: 2, FallbackCount: 4},
}

// Descriptor returns the static description of t.
func (t Type) Descriptor() Descriptor {
	if !t.Valid() {
		panic(fmt.Sprintf("content: invalid type %d", int(t)))
	}
	return descriptors[t]
}

// Valid reports whether t is one of the declared content types.
func (t Type) Valid() bool {
	return t >= Videos && t <= Calls
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return descriptors[t].Name
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType accepts the plural collection name or its singular form.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, d := range descriptors {
		if name == d.Name || name == strings.TrimSuffix(d.Name, "s") {
			return d.Type, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}
