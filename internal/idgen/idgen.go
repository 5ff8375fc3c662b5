// Package idgen implements IdGenerator (spec.md §4.3): given an IdStrategy,
// produces a new ID value per the contracts in spec.md §4.3. The
// CustomPrefix collision-retry bound is grounded on the teacher's
// exponential-backoff retry loop shape in
// internal/leader/changestream.go:StartChangeStreamListener, adapted from
// unbounded network retry to a small bounded in-process retry (see
// SPEC_FULL.md §4.3).
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// snowflakeEpoch is the fixed epoch the 41-bit timestamp component of a
// Snowflake ID is measured from. spec.md §4.3 specifies the bit layout but
// not a concrete epoch, and original_source/src/types/id_types/mod.rs does
// not pin one either (resolved in SPEC_FULL.md §4.3) — 2020-01-01T00:00:00Z
// is chosen as a fixed constant so IDs generated by this module are
// reproducible across processes.
var snowflakeEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	snowflakeTimestampBits = 41
	snowflakeDatacenterBits = 5
	snowflakeMachineBits    = 5
	snowflakeSequenceBits   = 12

	snowflakeMaxSequence = (1 << snowflakeSequenceBits) - 1

	maxCustomPrefixAttempts = 8
)

// Generator produces IDs per spec.md §4.3. It is safe for concurrent use.
type Generator struct {
	mu sync.Mutex

	lastMillis int64
	sequence   int64

	objectIDRandom [5]byte
	objectIDCounter uint32

	customSeen map[string]struct{}
}

// New constructs a Generator with a fresh per-process ObjectId random
// component, per spec.md §4.3: "ObjectId — 4-byte seconds, 5-byte random
// per process, 3-byte counter."
func New() *Generator {
	g := &Generator{customSeen: make(map[string]struct{})}
	if _, err := rand.Read(g.objectIDRandom[:]); err != nil {
		// crypto/rand failing is catastrophic for the process; fall back to
		// a time-derived value rather than panic, accepting reduced entropy.
		binary.BigEndian.PutUint32(g.objectIDRandom[:4], uint32(time.Now().UnixNano()))
	}
	return g
}

// Next produces a fresh ID for strategy. AutoIncrement returns Null: the
// adapter relies on the backend to assign the value (spec.md §4.3).
func (g *Generator) Next(strategy valuedomain.IdStrategy) (valuedomain.Value, error) {
	switch strategy.Kind {
	case valuedomain.IdAutoIncrement:
		return valuedomain.Null(), nil
	case valuedomain.IdUuid:
		return g.nextUuid()
	case valuedomain.IdSnowflake:
		return g.nextSnowflake(strategy.DatacenterID, strategy.MachineID)
	case valuedomain.IdObjectId:
		return g.nextObjectID()
	case valuedomain.IdCustomPrefix:
		return g.nextCustomPrefix(strategy.Prefix)
	default:
		return valuedomain.Value{}, errs.New(errs.KindInternal, "unknown id strategy")
	}
}

func (g *Generator) nextUuid() (valuedomain.Value, error) {
	id := uuid.New()
	v, err := valuedomain.NewUuid(id.String())
	if err != nil {
		return valuedomain.Value{}, errs.Wrap(errs.KindInternal, "generated uuid failed self-validation", err)
	}
	return v, nil
}

// nextSnowflake implements the 41/5/5/12-bit layout of spec.md §4.3. On
// clock-going-backwards it blocks up to the next millisecond, then fails
// with ClockSkew if the clock still hasn't caught up.
func (g *Generator) nextSnowflake(datacenterID uint8, machineID uint16) (valuedomain.Value, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Since(snowflakeEpoch).Milliseconds()

	if now < g.lastMillis {
		time.Sleep(time.Millisecond)
		now = time.Since(snowflakeEpoch).Milliseconds()
		if now < g.lastMillis {
			return valuedomain.Value{}, errs.New(errs.KindClockSkew, "system clock moved backwards")
		}
	}

	if now == g.lastMillis {
		g.sequence = (g.sequence + 1) & snowflakeMaxSequence
		if g.sequence == 0 {
			// Sequence exhausted within this millisecond: spin to the next one.
			for now <= g.lastMillis {
				now = time.Since(snowflakeEpoch).Milliseconds()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMillis = now

	id := (now << (snowflakeDatacenterBits + snowflakeMachineBits + snowflakeSequenceBits)) |
		(int64(datacenterID&0x1F) << (snowflakeMachineBits + snowflakeSequenceBits)) |
		(int64(machineID&0x1F) << snowflakeSequenceBits) |
		g.sequence

	return valuedomain.NewInt(id), nil
}

// nextObjectID implements "4-byte seconds, 5-byte random per process,
// 3-byte counter" from spec.md §4.3, matching MongoDB's own ObjectId shape
// so values generated under a non-Mongo backend remain visually familiar.
func (g *Generator) nextObjectID() (valuedomain.Value, error) {
	g.mu.Lock()
	counter := g.objectIDCounter
	g.objectIDCounter++
	random := g.objectIDRandom
	g.mu.Unlock()

	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(time.Now().Unix()))
	copy(buf[4:9], random[:])
	buf[9] = byte(counter >> 16)
	buf[10] = byte(counter >> 8)
	buf[11] = byte(counter)

	v, err := valuedomain.NewObjectId(hex.EncodeToString(buf[:]))
	if err != nil {
		return valuedomain.Value{}, errs.Wrap(errs.KindInternal, "generated object id failed self-validation", err)
	}
	return v, nil
}

// nextCustomPrefix implements "prefix + generator-chosen unique suffix
// (UUID by default); suffix must not collide within a process" (spec.md
// §4.3), resolving the Open Question on collision handling (SPEC_FULL.md
// §4.3) as bounded retry.
func (g *Generator) nextCustomPrefix(prefix string) (valuedomain.Value, error) {
	for attempt := 0; attempt < maxCustomPrefixAttempts; attempt++ {
		candidate := prefix + uuid.New().String()

		g.mu.Lock()
		_, collided := g.customSeen[candidate]
		if !collided {
			g.customSeen[candidate] = struct{}{}
		}
		g.mu.Unlock()

		if !collided {
			return valuedomain.NewString(candidate), nil
		}
	}
	return valuedomain.Value{}, errs.New(errs.KindInternal,
		fmt.Sprintf("could not generate a unique id with prefix %q after %d attempts", prefix, maxCustomPrefixAttempts))
}
