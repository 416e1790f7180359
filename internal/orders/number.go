package orders

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"
)

var randomDigitsBound = big.NewInt(1_000_000)

// NumberGenerator issues order numbers of the form
// PREFIX + 6 random digits + "-" + base36 microsecond timestamp.
// The timestamp part is strictly increasing within a process, so numbers
// from one generator never repeat; the unique index on orders covers
// collisions across processes.
type NumberGenerator struct {
	prefix string
	now    func() time.Time
	random io.Reader

	mu   sync.Mutex
	last int64
}

// NewNumberGenerator builds a generator with the given prefix.
func NewNumberGenerator(prefix string) *NumberGenerator {
	return &NumberGenerator{
		prefix: strings.ToUpper(strings.TrimSpace(prefix)),
		now:    time.Now,
		random: rand.Reader,
	}
}

// Next returns a fresh order number.
func (g *NumberGenerator) Next() (string, error) {
	n, err := rand.Int(g.random, randomDigitsBound)
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}

	g.mu.Lock()
	stamp := g.now().UnixMicro()
	if stamp <= g.last {
		stamp = g.last + 1
	}
	g.last = stamp
	g.mu.Unlock()

	return fmt.Sprintf("%s%06d-%s", g.prefix, n.Int64(), strings.ToUpper(strconv.FormatInt(stamp, 36))), nil
}
