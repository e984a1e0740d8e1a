//go:build unix

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cpiokit/cpio/pkg/cpio"
	"github.com/cpiokit/cpio/pkg/fsbridge"
)

func newExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <archive> <directory>",
		Short: "Extract a cpio archive into a directory tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(args[0], args[1])
		},
	}
	return cmd
}

func runExtract(archivePath, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer f.Close()

	a := cpio.NewArchive(f)
	sess := fsbridge.NewSession(dir)
	sess.Log = log

	for {
		h, err := a.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", archivePath, err)
		}
		if err := sess.Extract(h, a.Body()); err != nil {
			return fmt.Errorf("%s: extract %q: %w", archivePath, h.Name, err)
		}
	}

	return sess.Finish()
}
