// Package pathsafe implements the extraction path-safety policy of
// spec §4.5: a pure function that normalizes, rewrites, or rejects the
// name carried by a cpio entry before it is ever joined against a real
// extraction root.
package pathsafe

import (
	"errors"
	"strings"
)

// ErrUnsafePath is returned when a name cannot be made safe under any
// extraction root: it escapes upward past the root, or carries a NUL.
var ErrUnsafePath = errors.New("pathsafe: unsafe path")

// Policy controls how Normalize treats a leading-slash (absolute) name.
type Policy int

const (
	// RewriteAbsolute strips a leading slash and treats the remainder as
	// relative (GNU cpio's --no-absolute-filenames is more common in
	// practice, but this module defaults to rejecting, see RejectAbsolute).
	RewriteAbsolute Policy = iota
	// RejectAbsolute fails Normalize outright on a leading slash. This is
	// the default the filesystem bridge uses.
	RejectAbsolute
)

// Normalize applies spec §4.5 to name:
//  1. interpret it as a slash-separated byte path;
//  2. reject or rewrite a leading slash per policy;
//  3. resolve "." and ".." components logically, without touching the
//     filesystem; any resolution escaping the root fails;
//  4. reject embedded NUL bytes.
//
// The result never has a leading slash and never contains "." or ".."
// components; it is safe to join under an extraction root, though the
// filesystem bridge additionally guards the join itself against
// symlink-swap races (see pkg/fsbridge).
func Normalize(name string, policy Policy) (string, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return "", ErrUnsafePath
	}
	if name == "" {
		return "", ErrUnsafePath
	}

	isAbs := strings.HasPrefix(name, "/")
	if isAbs {
		if policy == RejectAbsolute {
			return "", ErrUnsafePath
		}
		name = strings.TrimLeft(name, "/")
	}

	var out []string
	depth := 0
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return "", ErrUnsafePath
			}
			out = out[:len(out)-1]
		default:
			depth++
			out = append(out, part)
		}
	}

	if len(out) == 0 {
		return "", ErrUnsafePath
	}
	return strings.Join(out, "/"), nil
}
