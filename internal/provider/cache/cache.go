// Package cache holds recently resolved quotes and market summaries for a
// fixed TTL. Expiry is lazy: entries are checked on read and never refreshed
// in the background.
package cache

import (
	"encoding/json"
	"time"
)

// Store is a key/value cache of JSON-serializable values.
//
// Get decodes a fresh entry into dst and reports whether it did. Failures of
// any kind are treated as a miss. Put never fails from the caller's view.
type Store interface {
	Get(key string, dst any) bool
	Put(key string, v any)
}

// fresh reports whether an entry stored at ts is still inside ttl.
func fresh(ts, now time.Time, ttl time.Duration) bool {
	return now.Sub(ts) < ttl
}

func decode(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
