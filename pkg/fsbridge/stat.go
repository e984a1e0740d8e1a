//go:build unix

// Package fsbridge translates between cpio archive entries and live
// filesystem objects (spec §4.4): StatHeader turns a filesystem path into
// a cpio.Header, and a Session turns a stream of cpio.Header plus body
// into files, directories, symlinks and device nodes, reassembling hard
// links as it goes.
package fsbridge

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cpiokit/cpio/pkg/cpio"
)

// StatHeader builds a cpio.Header from a filesystem path, the writer
// side's counterpart to Session.Extract. Unlike cpio.FileInfoHeader, it
// also populates Ino, DevMajor/DevMinor and Rdev{Major,Minor} from the
// platform stat structure, which is what lets the caller preserve
// hard-link topology when re-archiving a tree.
func StatHeader(path string) (*cpio.Header, string, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, "", err
	}

	var link string
	if fi.Mode()&os.ModeSymlink != 0 {
		link, err = os.Readlink(path)
		if err != nil {
			return nil, "", err
		}
	}

	h, err := cpio.FileInfoHeader(fi, link)
	if err != nil {
		return nil, "", err
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, "", fmt.Errorf("fsbridge: stat %s: %w", path, err)
	}
	h.Ino = uint32(st.Ino)
	h.NLink = uint32(st.Nlink)
	h.DevMajor = unix.Major(uint64(st.Dev))
	h.DevMinor = unix.Minor(uint64(st.Dev))
	if h.FileType == cpio.TypeCharDevice || h.FileType == cpio.TypeBlockDevice {
		h.RdevMajor = unix.Major(uint64(st.Rdev))
		h.RdevMinor = unix.Minor(uint64(st.Rdev))
	}
	h.UID = uint32(st.Uid)
	h.GID = uint32(st.Gid)

	return h, link, nil
}
