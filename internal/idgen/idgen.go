// Package idgen allocates opaque, monotonically increasing identifiers
// for catalog entities. Ids are strings so that plain `<` comparison
// reflects creation order, matching the "opaque monotonic strings"
// requirement of the data model.
package idgen

import (
	"encoding/base32"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
)

// encoding is extended-hex base32 (alphabet 0-9A-V) without padding;
// its characters sort in the same order as the values they encode, so
// the encoded id keeps the byte order of the millisecond prefix and
// counter.
var encoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// Generator produces ULID-shaped ids: a big-endian millisecond
// timestamp prefix followed by a monotonic in-process counter and a
// uuid-derived random tail, so ids generated within the same
// millisecond still sort by allocation order and ids from distinct
// processes do not collide.
type Generator struct {
	mu      sync.Mutex
	lastMS  int64
	counter uint32
}

// New returns a ready-to-use Generator.
func New() *Generator {
	return &Generator{}
}

// Default is a process-wide generator for call sites that don't carry
// their own (tests construct their own Generator for determinism).
var Default = New()

// Next allocates a new id with the given entity prefix, e.g. "fn",
// "tbl", "exec". The prefix is purely a debugging aid; ordering and
// uniqueness live entirely in the suffix.
func (g *Generator) Next(prefix string) string {
	g.mu.Lock()
	nowMS := time.Now().UTC().UnixMilli()
	if nowMS <= g.lastMS {
		g.counter++
	} else {
		g.lastMS = nowMS
		g.counter = 0
	}
	ms := g.lastMS
	ctr := g.counter
	g.mu.Unlock()

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(ms))
	binary.BigEndian.PutUint32(buf[8:12], ctr)
	tail := uuid.New()
	copy(buf[12:16], tail[:4])

	suffix := encoding.EncodeToString(buf[:])
	if prefix == "" {
		return suffix
	}
	return prefix + "_" + suffix
}

// Next allocates a new id using the package-default Generator.
func Next(prefix string) string { return Default.Next(prefix) }
