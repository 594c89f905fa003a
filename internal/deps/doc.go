// Package deps reports whether the external commands quire shells out to are
// installed.
package deps
