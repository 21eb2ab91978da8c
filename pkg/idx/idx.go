// Package idx mints sortable identifiers for outbound requests and session
// events. IDs are ULIDs, optionally carrying a short kind prefix such as
// "req_" so they can be told apart in logs.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind labels what an ID identifies.
type Kind string

const (
	KindNone    Kind = ""
	KindRequest Kind = "req"
	KindEvent   Kind = "evt"
)

const separator = "_"

// ID is a ULID with an optional kind prefix.
type ID string

// Zero is the empty ID.
const Zero ID = ""

// ErrInvalid reports a malformed ID.
var ErrInvalid = errors.New("idx: invalid id")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

func mint(t time.Time) ulid.ULID {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy)
}

// New returns an unprefixed ID for the current time.
func New() ID { return NewAt(KindNone, time.Now().UTC()) }

// NewAt returns an ID of kind k stamped with t. Monotonic within the
// process, so IDs minted in the same millisecond still sort by creation.
func NewAt(k Kind, t time.Time) ID {
	u := mint(t).String()
	if k == KindNone {
		return ID(u)
	}
	return ID(string(k) + separator + u)
}

// Request returns a new request id, sent as X-Request-ID.
func Request() ID { return NewAt(KindRequest, time.Now().UTC()) }

// Event returns a new event id.
func Event() ID { return NewAt(KindEvent, time.Now().UTC()) }

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if _, _, err := split(s); err != nil {
		return Zero, err
	}
	return ID(s), nil
}

func split(s string) (Kind, ulid.ULID, error) {
	if s == "" {
		return KindNone, ulid.ULID{}, ErrInvalid
	}

	kind, raw := KindNone, s
	if prefix, rest, ok := strings.Cut(s, separator); ok {
		kind, raw = Kind(prefix), rest
	}

	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return KindNone, ulid.ULID{}, ErrInvalid
	}
	return kind, u, nil
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Kind returns the prefix, or KindNone for unprefixed or invalid IDs.
func (id ID) Kind() Kind {
	k, _, err := split(string(id))
	if err != nil {
		return KindNone
	}
	return k
}

// Time extracts the embedded timestamp; the zero time for invalid IDs.
func (id ID) Time() time.Time {
	_, u, err := split(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}
