package testutil

import (
	"os"
	"strings"
	"testing"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// RequireTestEnvironmentOrSkip is similar to RequireTestEnvironment but skips the test
// instead of failing it. Use this for optional tests that should only run in test environment.
func RequireTestEnvironmentOrSkip(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Skipf("Skipping test: GO_ENV must be 'test' (current: %q)", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test for the duration of t
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	t.Setenv("GO_ENV", "test")
	if os.Getenv("GO_ENV") != "test" {
		t.Fatal("Failed to verify GO_ENV=test")
	}
}

// LogEnvironmentInfo logs the current test environment configuration
func LogEnvironmentInfo(t *testing.T) {
	t.Helper()
	t.Logf("Test Environment Info: GO_ENV=%s DATABASE_URL=%s", os.Getenv("GO_ENV"), MaskDatabaseURL(os.Getenv("DATABASE_URL")))
}

// MaskDatabaseURL hides everything after the first 20 characters of a database URL
func MaskDatabaseURL(url string) string {
	if url == "" {
		return "(not set)"
	}
	if len(url) <= 20 {
		return url
	}
	if strings.Contains(url, "test") {
		return url[:20] + "... [contains 'test']"
	}
	return url[:20] + "... [WARNING: may not be test DB]"
}
