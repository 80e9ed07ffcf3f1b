package oracle

import (
	"errors"
	"time"
)

// DefaultMaxQuoteAge is the protocol-wide staleness ceiling applied to price
// quotes before they reach the lending engine.
const DefaultMaxQuoteAge = 30 * time.Second

// ErrUnknownFeed indicates that no quote has ever been published for the
// requested feed identifier.
var ErrUnknownFeed = errors.New("oracle: unknown feed")

// Quote is a decoded price observation for a single feed: a signed mantissa,
// a signed power-of-ten exponent, and the time the upstream oracle published
// it. The pair (Price, Expo) renders the USD price as Price * 10^Expo.
type Quote struct {
	Price       int64
	Expo        int32
	PublishTime time.Time
}

// Fresh reports whether the quote was published within maxAge of now. Quotes
// stamped in the future are treated as stale to guard against clock skew on
// the publisher side.
func (q Quote) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxQuoteAge
	}
	if q.PublishTime.IsZero() {
		return false
	}
	age := now.Sub(q.PublishTime)
	return age >= 0 && age <= maxAge
}

// Source resolves the latest quote for a feed identifier.
type Source interface {
	Latest(feedID string) (Quote, error)
}
