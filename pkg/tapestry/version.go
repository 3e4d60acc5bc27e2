// Package tapestry carries project-level metadata shared by the CLI and
// library consumers.
package tapestry

// Version is the current release version.
const Version = "0.1.0"
