// Package deps reports whether the external executables avmerge shells out to
// are installed.
package deps
