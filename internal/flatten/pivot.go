package flatten

import (
	"fmt"
	"strings"
)

// Collision decides what a pivot does when a cell is written twice.
type Collision int

const (
	// CollisionFirst keeps the first value written to a cell and silently
	// drops the rest.
	CollisionFirst Collision = iota
	// CollisionStrict fails with *PivotConflictError when a cell receives
	// two different values.
	CollisionStrict
)

func (c Collision) String() string {
	if c == CollisionStrict {
		return "strict"
	}
	return "first"
}

// ParseCollision accepts "first", "strict" or an empty string (first).
func ParseCollision(s string) (Collision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return CollisionFirst, nil
	case "strict":
		return CollisionStrict, nil
	}
	return CollisionFirst, fmt.Errorf("unknown collision policy %q", s)
}

// pivot is a long to wide reshape keyed by (index, column), it remembers
// the order in which indexes and columns first appeared.
type pivot struct {
	policy  Collision
	indexes []string
	columns []string
	seenCol map[string]bool
	cells   map[string]map[string]string
}

func newPivot(policy Collision) *pivot {
	return &pivot{
		policy:  policy,
		seenCol: map[string]bool{},
		cells:   map[string]map[string]string{},
	}
}

func (p *pivot) set(index, column, value string) error {
	row, ok := p.cells[index]
	if !ok {
		row = map[string]string{}
		p.cells[index] = row
		p.indexes = append(p.indexes, index)
	}
	if !p.seenCol[column] {
		p.seenCol[column] = true
		p.columns = append(p.columns, column)
	}

	existing, ok := row[column]
	if !ok {
		row[column] = value
		return nil
	}
	if p.policy == CollisionStrict && existing != value {
		return &PivotConflictError{
			Index:  index,
			Column: column,
			First:  existing,
			Second: value,
		}
	}
	return nil
}

func (p *pivot) get(index, column string) (string, bool) {
	row, ok := p.cells[index]
	if !ok {
		return "", false
	}
	v, ok := row[column]
	return v, ok
}

func (p *pivot) value(index, column string) string {
	v, _ := p.get(index, column)
	return v
}
