//go:build unix

package fsbridge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cpiokit/cpio/pkg/cpio"
	"github.com/cpiokit/cpio/pkg/pathsafe"
)

type dirFixup struct {
	path  string
	mode  os.FileMode
	mtime time.Time
	uid   int
	gid   int
}

// Session extracts a sequence of cpio entries to a real directory tree,
// reconstructing hard links and deferring directory mtimes until their
// children have all been written (spec §4.4).
type Session struct {
	root string
	// Log receives non-fatal warnings (e.g. chown failing for lack of
	// privilege). Defaults to logrus.StandardLogger().
	Log *logrus.Logger

	pending  map[linkKey][]string
	resolved map[linkKey]string
	dirs     []dirFixup
}

// NewSession returns a Session extracting into root, which must already
// exist.
func NewSession(root string) *Session {
	return &Session{
		root:     root,
		Log:      logrus.StandardLogger(),
		pending:  make(map[linkKey][]string),
		resolved: make(map[linkKey]string),
	}
}

// Extract materializes one entry. body is read fully for regular files
// and symlinks; ignored otherwise.
func (s *Session) Extract(h *cpio.Header, body io.Reader) error {
	rel, err := pathsafe.Normalize(h.Name, pathsafe.RejectAbsolute)
	if err != nil {
		return err
	}
	path, err := securejoin.SecureJoin(s.root, rel)
	if err != nil {
		return fmt.Errorf("fsbridge: resolve %q: %w", h.Name, err)
	}

	switch h.FileType {
	case cpio.TypeDirectory:
		return s.extractDir(h, path)
	case cpio.TypeRegular:
		return s.extractRegular(h, path, body)
	case cpio.TypeSymlink:
		return s.extractSymlink(h, path, body)
	case cpio.TypeCharDevice, cpio.TypeBlockDevice:
		return s.extractDevice(h, path)
	case cpio.TypeFIFO:
		return s.extractFIFO(h, path)
	case cpio.TypeSocket:
		return s.extractSocket(h, path)
	default:
		s.Log.Warnf("fsbridge: skipping entry %q of unknown type", h.Name)
		return nil
	}
}

func (s *Session) extractDir(h *cpio.Header, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("fsbridge: mkdir %s: %w", path, err)
	}
	s.dirs = append(s.dirs, dirFixup{
		path:  path,
		mode:  h.FileMode().Perm(),
		mtime: h.ModTime,
		uid:   int(h.UID),
		gid:   int(h.GID),
	})
	return nil
}

func (s *Session) extractRegular(h *cpio.Header, path string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsbridge: mkdir %s: %w", filepath.Dir(path), err)
	}

	multi := h.NLink > 1

	if multi && h.FileSize == 0 {
		return s.deferOrLink(h, path)
	}

	if err := s.writeFile(path, h, body); err != nil {
		return err
	}
	if multi {
		return s.resolveGroup(h, path)
	}
	return nil
}

func (s *Session) writeFile(path string, h *cpio.Header, body io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("fsbridge: create %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("fsbridge: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("fsbridge: close %s: %w", path, err)
	}
	s.applyMetadata(path, h)
	return nil
}

func (s *Session) extractSymlink(h *cpio.Header, path string, body io.Reader) error {
	target, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("fsbridge: read symlink target for %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsbridge: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.Symlink(string(target), path); err != nil {
		return fmt.Errorf("fsbridge: symlink %s: %w", path, err)
	}
	if err := os.Lchown(path, int(h.UID), int(h.GID)); err != nil {
		s.Log.Warnf("fsbridge: lchown %s: %v", path, err)
	}
	return nil
}

func (s *Session) extractDevice(h *cpio.Header, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsbridge: mkdir %s: %w", filepath.Dir(path), err)
	}
	mode := uint32(h.FileMode().Perm())
	if h.FileType == cpio.TypeCharDevice {
		mode |= unix.S_IFCHR
	} else {
		mode |= unix.S_IFBLK
	}
	dev := unix.Mkdev(h.RdevMajor, h.RdevMinor)
	if err := unix.Mknod(path, mode, int(dev)); err != nil {
		return fmt.Errorf("fsbridge: mknod %s (requires privilege): %w", path, err)
	}
	s.applyMetadata(path, h)
	return nil
}

func (s *Session) extractFIFO(h *cpio.Header, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsbridge: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := unix.Mkfifo(path, uint32(h.FileMode().Perm())); err != nil {
		return fmt.Errorf("fsbridge: mkfifo %s: %w", path, err)
	}
	s.applyMetadata(path, h)
	return nil
}

func (s *Session) extractSocket(h *cpio.Header, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsbridge: mkdir %s: %w", filepath.Dir(path), err)
	}
	mode := uint32(h.FileMode().Perm()) | unix.S_IFSOCK
	if err := unix.Mknod(path, mode, 0); err != nil {
		return fmt.Errorf("fsbridge: mknod (socket) %s (requires privilege): %w", path, err)
	}
	s.applyMetadata(path, h)
	return nil
}

// applyMetadata chmod/chown/utimes a freshly written non-directory entry.
// Applied right after the body write, per spec §4.4, to avoid a
// read-only mode blocking the write that produced it.
func (s *Session) applyMetadata(path string, h *cpio.Header) {
	if err := os.Chmod(path, h.FileMode().Perm()); err != nil {
		s.Log.Warnf("fsbridge: chmod %s: %v", path, err)
	}
	if err := os.Chown(path, int(h.UID), int(h.GID)); err != nil {
		s.Log.Warnf("fsbridge: chown %s: %v", path, err)
	}
	if err := os.Chtimes(path, h.ModTime, h.ModTime); err != nil {
		s.Log.Warnf("fsbridge: chtimes %s: %v", path, err)
	}
}

// Finish applies deferred directory mode/mtime fixups and reports any
// hard-link group that never saw its content-carrying member.
func (s *Session) Finish() error {
	for _, d := range s.dirs {
		if err := os.Chmod(d.path, d.mode); err != nil {
			s.Log.Warnf("fsbridge: chmod %s: %v", d.path, err)
		}
		if err := os.Chown(d.path, d.uid, d.gid); err != nil {
			s.Log.Warnf("fsbridge: chown %s: %v", d.path, err)
		}
		if err := os.Chtimes(d.path, d.mtime, d.mtime); err != nil {
			s.Log.Warnf("fsbridge: chtimes %s: %v", d.path, err)
		}
	}

	if len(s.pending) > 0 {
		return cpio.DanglingHardLinkError(len(s.pending))
	}
	return nil
}
