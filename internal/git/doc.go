// Package git reads version-control state of the root project with go-git.
//
// It is used to fill in the reference (commit) and a dev version of the root package when
// composer.json does not declare them.
package git
