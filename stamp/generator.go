package stamp

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rankstamp/rankstamp/lexnum"
)

// ErrEqualStamps reports that Between was given two identical bounds. No
// value can sort strictly between identical sequences.
var ErrEqualStamps = errors.New("stamp: bounds are equal")

// Codec converts a real number into an order-preserving string: x < y must
// imply Codec(x) < Codec(y) bytewise, with distinct inputs encoding to
// distinct outputs. Output bytes must lie within [CharMin, CharMax).
type Codec func(value float64) string

// Generator mints stamps. Construct with New; the zero value has no time or
// randomness source.
type Generator struct {
	now   func() time.Time
	intN  func(n int) int
	codec Codec
}

// Option configures a Generator.
type Option func(*Generator)

// WithTimeSource replaces the wall clock read by Start and End.
func WithTimeSource(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithRandom replaces the process-shared randomness with src. The source is
// serialized behind a mutex, so a deterministic source such as rand.NewPCG
// remains safe under concurrent callers.
func WithRandom(src rand.Source) Option {
	return func(g *Generator) {
		r := rand.New(src)
		var mu sync.Mutex
		g.intN = func(n int) int {
			mu.Lock()
			defer mu.Unlock()
			return r.IntN(n)
		}
	}
}

// WithCodec replaces the numeric codec used by Start, End, and FromValue.
func WithCodec(codec Codec) Option {
	return func(g *Generator) {
		g.codec = codec
	}
}

// New returns a Generator reading the wall clock, drawing randomness from
// the shared math/rand/v2 generator, and encoding values with lexnum.Encode.
func New(opts ...Option) *Generator {
	g := &Generator{
		now:   time.Now,
		intN:  rand.IntN,
		codec: lexnum.Encode,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start mints a stamp that sorts before every stamp an earlier Start or End
// call produced, so repeated prepends keep landing first. The clock reading
// is negated before encoding; as time advances the encoded value decreases.
// Calls within the same clock reading are ordered only by their random
// suffixes, and a clock stepping backwards weakens the ordering of repeated
// calls without ever producing an invalid stamp.
func (g *Generator) Start() Stamp {
	return g.FromValue(-float64(g.now().UnixMilli()))
}

// End mints a stamp that sorts after every stamp an earlier Start or End
// call produced, safe for repeated appends. The same clock caveats as Start
// apply.
func (g *Generator) End() Stamp {
	return g.FromValue(float64(g.now().UnixMilli()))
}

// FromValue mints a stamp ordered by value: x < y implies
// FromValue(x) < FromValue(y). A random SuffixLen-byte suffix distinguishes
// stamps minted for equal values.
func (g *Generator) FromValue(value float64) Stamp {
	enc := g.codec(value)
	out := make([]byte, 0, len(enc)+SuffixLen)
	out = append(out, enc...)
	return Stamp(g.appendSuffix(out))
}

// FromValueKey mints a stamp ordered by value, with the caller's key in
// place of the random suffix. Callers already holding a unique key, such as
// a row identifier, get deterministic stamps. Key bytes must lie within
// [CharMin, CharMax).
func (g *Generator) FromValueKey(value float64, key string) Stamp {
	return Stamp(g.codec(value) + key)
}

// Between mints a stamp sorting strictly between prev and next. The bounds
// may be given in either order; equal bounds fail with ErrEqualStamps, the
// only error this package reports.
//
// LeftEdge and RightEdge serve as the open ends of the ordering space.
// Bounds must contain only bytes in [CharMin, CharMax); behavior on other
// input is unspecified. Bounds crafted with no room between them, where
// next continues prev with the minimum code, cannot be separated within the
// permitted alphabet; generated stamps never abut this way.
func (g *Generator) Between(prev, next Stamp) (Stamp, error) {
	cmp := prev.Compare(next)
	if cmp == 0 {
		return "", ErrEqualStamps
	}
	if cmp > 0 {
		prev, next = next, prev
	}

	p := CommonPrefixLen(prev, next)
	out := make([]byte, 0, len(prev)+1+SuffixLen)
	out = append(out, next[:p]...)

	// One byte below next's divergent byte places the result before next.
	// When prev ends at the shared prefix its first byte stands in for the
	// lower bound; CharMin stands in when prev is empty or the stand-in
	// does not sit below the upper bound.
	maxChar := int(next[p])
	minChar := CharMin
	if p < len(prev) {
		minChar = int(prev[p])
	} else if p > 0 {
		minChar = int(prev[0])
	}
	if minChar >= maxChar {
		minChar = CharMin
	}
	out = append(out, byte(g.randInt(minChar, maxChar)))

	// Walking prev past the divergence keeps the result above prev: bytes
	// at the ceiling are carried verbatim, and the first byte with headroom
	// is replaced by a strictly greater one. When prev's tail is empty or
	// entirely at the ceiling, the suffix below settles the order by length.
	for i := p + 1; i < len(prev); i++ {
		pc := int(prev[i])
		if pc < CharMax-1 {
			out = append(out, byte(g.randInt(pc+1, CharMax)))
			break
		}
		out = append(out, prev[i])
	}

	return Stamp(g.appendSuffix(out)), nil
}

// defaultGenerator backs the package-level operations.
var defaultGenerator = New()

// Start mints a start-of-list stamp from the default generator.
func Start() Stamp { return defaultGenerator.Start() }

// End mints an end-of-list stamp from the default generator.
func End() Stamp { return defaultGenerator.End() }

// FromValue mints a value-ordered stamp from the default generator.
func FromValue(value float64) Stamp { return defaultGenerator.FromValue(value) }

// FromValueKey mints a value-ordered stamp carrying the caller's key from
// the default generator.
func FromValueKey(value float64, key string) Stamp {
	return defaultGenerator.FromValueKey(value, key)
}

// Between mints a stamp between prev and next from the default generator.
func Between(prev, next Stamp) (Stamp, error) {
	return defaultGenerator.Between(prev, next)
}
