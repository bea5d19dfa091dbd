// Package eventid generates the Id attribute carried by every eSocial event.
//
// The format is fixed at 36 characters:
//
//	ID{tpInsc:1}{nrInsc:14}{yyyyMMddHHmmss:14}{seq:5}
//
// The sequential part is a per-generator counter seeded from crypto/rand, so
// a single process never repeats an Id within the same second until it has
// issued 100000 of them in that second.
package eventid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

// Length is the length of every generated Id.
const Length = 36

const seqSpace = 100000

// Generator produces event Ids. It is safe for concurrent use.
type Generator struct {
	seq atomic.Uint64
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithSeed sets the initial counter value.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.seq.Store(seed)
	}
}

// New returns a Generator with a random starting sequence.
func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		g.seq.Store(binary.BigEndian.Uint64(b[:]) % seqSpace)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultGenerator = New()

// Generate returns a new Id from the package generator.
func Generate(tpInsc, nrInsc string) string {
	return defaultGenerator.Generate(tpInsc, nrInsc)
}

// Generate returns a new Id. tpInsc defaults to "1" and nrInsc is reduced to
// its digits and zero-padded (or truncated) to 14 characters.
func (g *Generator) Generate(tpInsc, nrInsc string) string {
	seq := (g.seq.Add(1) - 1) % seqSpace
	return fmt.Sprintf("ID%s%s%s%05d",
		InscriptionType(tpInsc),
		PadInscription(nrInsc),
		g.now().Format("20060102150405"),
		seq)
}

// InscriptionType returns the single-digit inscription type, "1" when absent.
func InscriptionType(tpInsc string) string {
	d := Digits(tpInsc)
	if d == "" {
		return "1"
	}
	return d[:1]
}

// PadInscription returns the 14-digit inscription used in Ids.
func PadInscription(nrInsc string) string {
	d := Digits(nrInsc)
	if len(d) >= 14 {
		return d[:14]
	}
	return strings.Repeat("0", 14-len(d)) + d
}

// Digits strips every non-digit character.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// Valid reports whether id has the Id shape.
func Valid(id string) bool {
	if len(id) != Length || !strings.HasPrefix(id, "ID") {
		return false
	}
	return Digits(id[2:]) == id[2:]
}
