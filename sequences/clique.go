package sequences

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Clique is the set of relative offsets that take part in one factor of a
// linear-chain model, e.g. [-2 -1 0]. Cliques are interned: two cliques with
// the same offsets are the same pointer, so == is a valid comparison.
type Clique struct {
	offsets []int
	key     string
}

var (
	internMu sync.Mutex
	interned = make(map[string]*Clique)
)

// Well-known cliques used to describe factor structure.
var (
	CliqueC               = mustClique(0)
	CliqueCpC             = mustClique(-1, 0)
	CliqueCp2C            = mustClique(-2, 0)
	CliqueCp3C            = mustClique(-3, 0)
	CliqueCp4C            = mustClique(-4, 0)
	CliqueCp5C            = mustClique(-5, 0)
	CliqueCpCp2C          = mustClique(-2, -1, 0)
	CliqueCpCp2Cp3C       = mustClique(-3, -2, -1, 0)
	CliqueCpCp2Cp3Cp4C    = mustClique(-4, -3, -2, -1, 0)
	CliqueCpCp2Cp3Cp4Cp5C = mustClique(-5, -4, -3, -2, -1, 0)
	CliqueCnC             = mustClique(0, 1)
	CliqueCpCnC           = mustClique(-1, 0, 1)
)

// KnownCliques lists the left-context cliques in order of increasing span.
var KnownCliques = []*Clique{
	CliqueC, CliqueCpC, CliqueCp2C, CliqueCp3C, CliqueCp4C, CliqueCp5C,
	CliqueCpCp2C, CliqueCpCp2Cp3C, CliqueCpCp2Cp3Cp4C, CliqueCpCp2Cp3Cp4Cp5C,
}

func mustClique(offsets ...int) *Clique {
	c, err := ValueOf(offsets)
	if err != nil {
		panic(err)
	}
	return c
}

// ValueOf returns the interned clique for offsets, which must be non-empty,
// strictly ascending and therefore free of duplicates. The slice is copied.
func ValueOf(offsets []int) (*Clique, error) {
	if len(offsets) == 0 {
		return nil, fmt.Errorf("clique: no offsets: %w", ErrInvalidArgument)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return nil, fmt.Errorf("clique: offsets %v not strictly ascending: %w", offsets, ErrInvalidArgument)
		}
	}
	return intern(slices.Clone(offsets)), nil
}

// ValueOfRange returns the contiguous clique [maxLeft, maxRight].
func ValueOfRange(maxLeft, maxRight int) (*Clique, error) {
	if maxLeft > maxRight {
		return nil, fmt.Errorf("clique: range [%d,%d] is empty: %w", maxLeft, maxRight, ErrInvalidArgument)
	}
	offsets := make([]int, 0, maxRight-maxLeft+1)
	for i := maxLeft; i <= maxRight; i++ {
		offsets = append(offsets, i)
	}
	return intern(offsets), nil
}

// intern takes ownership of offsets.
func intern(offsets []int) *Clique {
	key := cliqueKey(offsets)
	internMu.Lock()
	defer internMu.Unlock()
	if c, ok := interned[key]; ok {
		return c
	}
	c := &Clique{offsets: offsets, key: key}
	interned[key] = c
	return c
}

func cliqueKey(offsets []int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, o := range offsets {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(o))
	}
	b.WriteByte(']')
	return b.String()
}

// MaxLeft is the leftmost (smallest) offset.
func (c *Clique) MaxLeft() int { return c.offsets[0] }

// MaxRight is the rightmost (largest) offset.
func (c *Clique) MaxRight() int { return c.offsets[len(c.offsets)-1] }

// Size is the number of offsets.
func (c *Clique) Size() int { return len(c.offsets) }

// RelativeIndex returns the i-th offset.
func (c *Clique) RelativeIndex(i int) int { return c.offsets[i] }

// IndexOfRelativeIndex returns the position of offset r, or -1.
func (c *Clique) IndexOfRelativeIndex(r int) int {
	i, ok := slices.BinarySearch(c.offsets, r)
	if !ok {
		return -1
	}
	return i
}

// Offsets returns a copy of the offsets.
func (c *Clique) Offsets() []int { return slices.Clone(c.offsets) }

// LeftMessage is the clique without its rightmost offset. It returns nil for
// a single-offset clique.
func (c *Clique) LeftMessage() *Clique {
	if len(c.offsets) < 2 {
		return nil
	}
	return intern(slices.Clone(c.offsets[:len(c.offsets)-1]))
}

// RightMessage is the clique without its leftmost offset. It returns nil for
// a single-offset clique.
func (c *Clique) RightMessage() *Clique {
	if len(c.offsets) < 2 {
		return nil
	}
	return intern(slices.Clone(c.offsets[1:]))
}

// Shift moves every offset by n.
func (c *Clique) Shift(n int) *Clique {
	if n == 0 {
		return c
	}
	offsets := make([]int, len(c.offsets))
	for i, o := range c.offsets {
		offsets[i] = o + n
	}
	return intern(offsets)
}

// Shifted returns c with every offset moved by offset.
func Shifted(c *Clique, offset int) *Clique { return c.Shift(offset) }

func (c *Clique) String() string { return c.key }
