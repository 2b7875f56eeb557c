// Package catalog holds the search phrase list and draws random runs from it.
package catalog

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/dgnsrekt/rewardrunner/internal/types"
)

// Catalog is an immutable, ordered list of distinct search phrases.
type Catalog struct {
	terms []string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{terms: append([]string(nil), defaultTerms...)}
}

// New validates terms and returns a catalog over a copy of them. Entries are
// trimmed; blank or duplicate entries are rejected.
func New(terms []string) (*Catalog, error) {
	if len(terms) == 0 {
		return nil, types.NewError(types.CodeValidation, "catalog must contain at least one term", nil)
	}
	seen := make(map[string]int, len(terms))
	out := make([]string, 0, len(terms))
	for i, raw := range terms {
		term := strings.TrimSpace(raw)
		if term == "" {
			return nil, types.NewError(types.CodeValidation, fmt.Sprintf("term %d is empty", i+1), nil)
		}
		if prev, dup := seen[term]; dup {
			return nil, types.NewError(types.CodeValidation, fmt.Sprintf("term %d duplicates term %d: %q", i+1, prev+1, term), nil)
		}
		seen[term] = i
		out = append(out, term)
	}
	return &Catalog{terms: out}, nil
}

func (c *Catalog) Len() int { return len(c.terms) }

// Terms returns a copy of the catalog in its stored order.
func (c *Catalog) Terms() []string {
	return append([]string(nil), c.terms...)
}

// Sample returns n distinct terms in uniformly random order. The catalog is
// left untouched. A nil rng uses the package-level source.
func (c *Catalog) Sample(rng *rand.Rand, n int) ([]string, error) {
	if n < 0 || n > len(c.terms) {
		return nil, types.NewError(types.CodeValidation,
			fmt.Sprintf("cannot sample %d terms from a catalog of %d", n, len(c.terms)), nil)
	}

	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}

	shuffled := c.Terms()
	for i := len(shuffled) - 1; i > 0; i-- {
		j := intN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n:n], nil
}
