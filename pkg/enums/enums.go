// Package enums holds the string-backed domain enumerations shared by the
// models, the API and the outbox payloads.
package enums

import "fmt"

func parseEnum[T ~string](values []T, raw, kind string) (T, error) {
	for _, v := range values {
		if string(v) == raw {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
