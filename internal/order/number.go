package order

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const (
	numberPrefix    = "ORD"
	numberSuffixLen = 5
	base36Alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NumberGenerator builds human-readable order numbers of the form
// ORD-<unix millis>-<5 base36 chars>. Uniqueness is enforced by the caller.
type NumberGenerator struct {
	now  func() time.Time
	intN func(n int) int
}

func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{now: time.Now, intN: rand.Intn}
}

func (g *NumberGenerator) Next() string {
	var suffix strings.Builder
	suffix.Grow(numberSuffixLen)
	for i := 0; i < numberSuffixLen; i++ {
		suffix.WriteByte(base36Alphabet[g.intN(len(base36Alphabet))])
	}
	return fmt.Sprintf("%s-%d-%s", numberPrefix, g.now().UnixMilli(), suffix.String())
}
