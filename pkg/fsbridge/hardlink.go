//go:build unix

package fsbridge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cpiokit/cpio/pkg/cpio"
)

// linkKey identifies a hard-link group: spec §3's (dev_major, dev_minor, ino).
type linkKey struct {
	devMajor, devMinor, ino uint32
}

func keyOf(h *cpio.Header) linkKey {
	return linkKey{h.DevMajor, h.DevMinor, h.Ino}
}

// deferOrLink handles a zero-size member of a hard-link group (spec §4.4):
// if the group's content-carrying member has already been written, the
// member becomes an immediate hard link; otherwise its path is recorded
// in the pending table to be satisfied later, or reported as dangling at
// Finish.
func (s *Session) deferOrLink(h *cpio.Header, path string) error {
	key := keyOf(h)
	if target, ok := s.resolved[key]; ok {
		return s.link(target, path)
	}
	s.pending[key] = append(s.pending[key], path)
	return nil
}

// resolveGroup is called once a group's content-carrying member has been
// written to path: every path deferred earlier becomes a hard link to it.
func (s *Session) resolveGroup(h *cpio.Header, path string) error {
	key := keyOf(h)
	s.resolved[key] = path
	for _, deferredPath := range s.pending[key] {
		if err := s.link(path, deferredPath); err != nil {
			return err
		}
	}
	delete(s.pending, key)
	return nil
}

func (s *Session) link(target, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsbridge: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.Link(target, path); err != nil {
		return fmt.Errorf("fsbridge: link %s -> %s: %w", path, target, err)
	}
	return nil
}
