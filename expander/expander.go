// Package expander compiles parsed search expressions into raw SQL
// fragments: tags become subqueries, path segments become LIKE patterns,
// and terms that name an alias are substituted, recursively when the
// alias asks for it.
package expander

import (
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/expression"
)

// MaxDepth bounds recursive alias expansion. A cyclic alias set manifests
// as ErrTooDeep rather than an infinite loop.
const MaxDepth = 30

// ErrTooDeep is returned when alias expansion exceeds MaxDepth.
var ErrTooDeep = errors.New("too deep recursively alias")

// Expander resolves aliases and tag references into SQL. The result is an
// opaque fragment destined to be appended to "SELECT * FROM images WHERE ".
type Expander struct {
	aliases map[string]alias.Alias
}

// New merges the global alias map with the catalog-local one; local
// entries win on name collision.
func New(local, global map[string]alias.Alias) *Expander {
	merged := make(map[string]alias.Alias, len(local)+len(global))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	return &Expander{aliases: merged}
}

// Expand parses and expands expr into a raw SQL fragment.
func (x *Expander) Expand(expr string) (string, error) {
	return x.expand(expression.Parse(expr), 0)
}

// ExpandQuery expands an already-parsed query.
func (x *Expander) ExpandQuery(q expression.Query) (string, error) {
	return x.expand(q, 0)
}

func (x *Expander) expand(q expression.Query, n int) (string, error) {
	if n > MaxDepth {
		return "", ErrTooDeep
	}

	slog.Debug("expanding", "depth", n, "query", q.Render())

	var result strings.Builder
	for _, e := range q.Elements {
		switch e := e.(type) {
		case expression.Any:
			result.WriteRune(e.Char)
		case expression.Delimiter:
			result.WriteString(e.Text)
		case expression.NoirTag:
			result.WriteString("(path in (SELECT path FROM tags WHERE tag = ")
			result.WriteString(expression.Literal(e.Name))
			result.WriteString("))")
		case expression.PathSegment:
			result.WriteString("(path like ")
			result.WriteString(expression.Literal("%" + e.Text + "%"))
			result.WriteString(")")
		case expression.StringLiteral:
			result.WriteString(expression.Literal(e.Text))
		case expression.Term:
			if a, ok := x.aliases[e.Text]; ok {
				if a.Recursive {
					expanded, err := x.expand(expression.Parse(a.Expression), n+1)
					if err != nil {
						return "", err
					}
					result.WriteString(expanded)
				} else {
					result.WriteString(a.Expression)
				}
			} else {
				result.WriteString(e.Text)
			}
		}
	}

	slog.Debug("expanded", "result", result.String())
	return result.String(), nil
}

// Get looks up a merged alias by name.
func (x *Expander) Get(name string) (alias.Alias, bool) {
	a, ok := x.aliases[name]
	return a, ok
}

// Names returns all merged alias names, sorted.
func (x *Expander) Names() []string {
	names := make([]string, 0, len(x.aliases))
	for name := range x.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
