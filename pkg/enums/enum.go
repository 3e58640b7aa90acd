// Package enums holds the string enums persisted in Postgres enum columns.
package enums

import (
	"fmt"
	"slices"
)

// members is the closed value set of one enum type.
type members[T ~string] []T

func (m members[T]) has(v T) bool {
	return slices.Contains(m, v)
}

func (m members[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); m.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
