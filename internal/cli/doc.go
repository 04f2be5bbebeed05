// Package cli parses command-line arguments into an app configuration. It
// is deliberately thin: validation of values lives here, everything about
// running lives in the app package.
package cli
