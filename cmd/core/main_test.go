package main

import (
	"strings"
	"testing"
)

func TestVersionSet(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestVersionFormat(t *testing.T) {
	// Build flags may override the default; either way the version is
	// expected to look like a semver triple
	parts := strings.Split(Version, ".")
	if len(parts) != 3 {
		t.Errorf("Expected semver-style version, got %q", Version)
	}
}
