package flatten

import (
	"fmt"
)

// SchemaAssumptionError means the definition does not have a key or shape
// the flattening rules depend on.
type SchemaAssumptionError struct {
	Path   string
	Reason string
}

func (e *SchemaAssumptionError) Error() string {
	return fmt.Sprintf("flatten: unexpected definition shape at %q: %s", e.Path, e.Reason)
}

// PivotConflictError is returned in strict collision mode when a pivot cell
// receives two different values.
type PivotConflictError struct {
	Index  string
	Column string
	First  string
	Second string
}

func (e *PivotConflictError) Error() string {
	return fmt.Sprintf(
		"flatten: conflicting values for %s/%s: %q and %q",
		e.Index, e.Column, e.First, e.Second,
	)
}
