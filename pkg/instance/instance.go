// Package instance names the running process for logs and lock ownership.
package instance

import (
	"os"
	"strings"
)

// ID returns STOREFRONT_INSTANCE_ID when set, then the host name, and
// finally "<kind>-0".
func ID(kind string) string {
	if id := strings.TrimSpace(os.Getenv("STOREFRONT_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return kind + "-0"
}
