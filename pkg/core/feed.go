package core

import (
	"strings"
	"time"
)

// FeedType classifies how a context feed obtains its content.
type FeedType string

const (
	// FeedOnDemand feeds resolve their source when the cache is stale.
	FeedOnDemand FeedType = "on_demand"

	// FeedPeriodic feeds resolve on a TTL schedule.
	FeedPeriodic FeedType = "periodic"

	// FeedInternal feeds hold directly-set content.
	FeedInternal FeedType = "internal"

	// FeedOther feeds are never refreshed by the runtime.
	FeedOther FeedType = "other"
)

// ParseFeedType maps a raw value to a FeedType, defaulting to on_demand.
func ParseFeedType(raw string) FeedType {
	switch FeedType(strings.ToLower(strings.TrimSpace(raw))) {
	case FeedPeriodic:
		return FeedPeriodic
	case FeedInternal:
		return FeedInternal
	case FeedOther:
		return FeedOther
	default:
		return FeedOnDemand
	}
}

// ContextFeed is a named, dynamically resolved piece of contextual content
// injected into subsequent prompts. The Source descriptor is resolved
// through the same Executor boundary as actions.
type ContextFeed struct {
	ID        string
	Type      FeedType
	Source    map[string]any
	Content   string
	CacheTTL  time.Duration
	MaxTokens int

	FetchedAt time.Time
}

// Stale reports whether the feed's cached content has expired. Feeds with
// no TTL are stale only while unresolved.
func (f *ContextFeed) Stale(now time.Time) bool {
	if f.FetchedAt.IsZero() {
		return true
	}
	if f.CacheTTL <= 0 {
		return false
	}
	return now.Sub(f.FetchedAt) >= f.CacheTTL
}
