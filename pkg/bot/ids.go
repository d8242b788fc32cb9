// Copyright 2024-2026 Aiku AI

package bot

import (
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"
)

// base32SortAlphabet encodes record ids so their lexicographic order
// matches their numeric (and therefore chronological) order.
const base32SortAlphabet = "234567abcdefghijklmnopqrstuvwxyz"

// RecordID is a 13-character, base32-sortable, time-ordered local id.
// It packs a microsecond timestamp and a per-process clock id into 64
// bits, so ids sort by creation time without a separate index. Used both
// as the storage key suffix and as the URI path segment of objects this
// bot mints.
type RecordID string

var recordIDRe = regexp.MustCompile(`^[234567abcdefghij][234567abcdefghijklmnopqrstuvwxyz]{12}$`)

// ParseRecordID validates a raw string as a RecordID. Use this on any id
// arriving from the network before touching storage with it.
func ParseRecordID(raw string) (RecordID, error) {
	if len(raw) != 13 {
		return "", fmt.Errorf("record id has wrong length %d", len(raw))
	}
	if !recordIDRe.MatchString(raw) {
		return "", fmt.Errorf("record id %q is not base32-sortable", raw)
	}
	return RecordID(raw), nil
}

// newRecordID packs a microsecond timestamp and clock id into the
// sortable string form.
func newRecordID(unixMicros int64, clockID uint) RecordID {
	v := (uint64(unixMicros&0x1F_FFFF_FFFF_FFFF) << 10) | uint64(clockID&0x3FF)
	b := make([]byte, 13)
	for i := 12; i >= 0; i-- {
		b[i] = base32SortAlphabet[v&0x1F]
		v >>= 5
	}
	return RecordID(b)
}

// Time returns the creation timestamp encoded in the id.
func (id RecordID) Time() time.Time {
	var v uint64
	for i := 0; i < len(id); i++ {
		c := indexByte(base32SortAlphabet, id[i])
		if c < 0 {
			return time.Time{}
		}
		v = (v << 5) | uint64(c)
	}
	return time.UnixMicro(int64((v >> 10) & 0x1F_FFFF_FFFF_FFFF)).UTC()
}

func (id RecordID) String() string {
	return string(id)
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// recordClock issues monotonically increasing RecordIDs. Wall-clock ties
// (or regressions) bump the timestamp by one microsecond so concurrent
// publishes never collide. Safe for concurrent use.
type recordClock struct {
	clockID       uint
	mu            sync.Mutex
	lastUnixMicro int64
}

func newRecordClock() *recordClock {
	return &recordClock{clockID: uint(rand.Intn(1 << 10))}
}

func (c *recordClock) Next() RecordID {
	now := time.Now().UTC().UnixMicro()
	c.mu.Lock()
	if now <= c.lastUnixMicro {
		now = c.lastUnixMicro + 1
	}
	c.lastUnixMicro = now
	c.mu.Unlock()
	return newRecordID(now, c.clockID)
}

// Storage key layout. Keys are ordered byte paths; the outbox prefix plus
// a RecordID suffix keeps envelopes in publish order.
const (
	outboxKeyPrefix        = "outbox:"
	followRequestKeyPrefix = "followreq:"
	followersKey           = "followers"
)

// MakeOutboxKey builds the storage key for an envelope record.
func MakeOutboxKey(id RecordID) []byte {
	return []byte(outboxKeyPrefix + string(id))
}

// ParseOutboxKey extracts the RecordID from an outbox storage key.
func ParseOutboxKey(key []byte) (RecordID, error) {
	s := string(key)
	if len(s) <= len(outboxKeyPrefix) || s[:len(outboxKeyPrefix)] != outboxKeyPrefix {
		return "", fmt.Errorf("not an outbox key: %q", s)
	}
	return ParseRecordID(s[len(outboxKeyPrefix):])
}

// MakeFollowRequestKey builds the storage key indexing an inbound Follow
// activity id to its follower.
func MakeFollowRequestKey(activityID string) []byte {
	return []byte(followRequestKeyPrefix + activityID)
}
