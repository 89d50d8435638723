// Package workspace provides the run's scratch directory and the filesystem helpers used to
// wipe node_modules and unpack downloaded archives into a package.
package workspace
