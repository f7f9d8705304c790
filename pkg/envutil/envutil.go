// Package envutil provides flag defaults backed by environment variables.
package envutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/containerd/log"
)

// Usage appends the "[$ENV]" hint to a flag description.
func Usage(desc, envName string) string {
	return fmt.Sprintf("%s [$%s]", desc, envName)
}

func String(envName, defaultValue string) string {
	v, ok := os.LookupEnv(envName)
	if !ok {
		return defaultValue
	}
	return v
}

// StringSlice splits a comma-separated variable. Blank entries are dropped,
// so an empty variable yields an empty (non-nil) slice.
func StringSlice(envName string, defaultValue []string) []string {
	v, ok := os.LookupEnv(envName)
	if !ok {
		return defaultValue
	}
	ss := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			ss = append(ss, s)
		}
	}
	return ss
}

func Bool(envName string, defaultValue bool) bool {
	v, ok := os.LookupEnv(envName)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.L.WithError(err).Warnf("Failed to parse %q ($%s) as a boolean", v, envName)
		return defaultValue
	}
	return b
}
