package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseVector parses a comma-separated list of floats, e.g. "0.1,0.2,0.3".
func parseVector(s string) ([]float32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("vector must not be empty")
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %q: %w", p, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}
