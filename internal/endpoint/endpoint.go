package endpoint

import (
	"fmt"
	"strings"
)

// Normalize turns "8080" into ":8080" and keeps host:port values as is.
func Normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":0"
	}

	if addr[0] == ':' || strings.Contains(addr, ":") {
		return addr
	}

	return fmt.Sprintf(":%s", addr)
}
