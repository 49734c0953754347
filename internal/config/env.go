package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// must returns a required variable and exits the process when it is unset
// or empty.  Configuration is read once at startup, before the structured
// logger exists.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// The env* helpers fall back to d when the variable is unset, empty or
// unparsable.

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	dur, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return d
	}
	return dur
}

// envSet splits a comma separated list into an upper-cased set.
func envSet(k, d string) map[string]bool {
	set := map[string]bool{}
	for _, p := range strings.Split(envStr(k, d), ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			set[p] = true
		}
	}
	return set
}
