// Package main provides the PentryPal Core library entry point.
// The core compiles two ways:
// - Shared library for mobile (Dart FFI), see cmd/mobile
// - Standalone control plane for desktop, see cmd/desktop
package main

import (
	"fmt"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	fmt.Printf("PentryPal Core v%s\n", Version)
}
