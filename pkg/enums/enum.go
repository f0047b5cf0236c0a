// Package enums holds the closed string sets that mirror Postgres enum types.
// Each type offers IsValid, used by the request validator's enum tag, and a
// Parse function for raw input.
package enums

import (
	"fmt"
	"slices"
)

func parse[T ~string](kind string, members []T, raw string) (T, error) {
	if v := T(raw); slices.Contains(members, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
