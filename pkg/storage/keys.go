package storage

import (
	"fmt"
	"time"
)

// Pebble key schema:
//
//	ord:<orderID>                      → Order (JSON)
//	trade:<unix-nanos, 20 digits>:<id> → Trade (JSON)
//
// Trade keys are zero-padded so lexicographic order is chronological.
const (
	prefixOrder = "ord:"
	prefixTrade = "trade:"
)

func orderKey(id string) []byte {
	return []byte(prefixOrder + id)
}

func tradeKey(executedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixTrade, executedAt.UnixNano(), id))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
