//go:build e2e

// Package e2e_test exercises a deployed query API over the wire. Point
// JOBFEED_E2E_BASE_URL at the stack under test; it defaults to a local
// compose setup.
package e2e_test

import (
	"net/http"
	"os"
	"time"
)

func baseURL() string {
	if v := os.Getenv("JOBFEED_E2E_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
