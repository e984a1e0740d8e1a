package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cpiokit/cpio/pkg/cpio"
	"github.com/cpiokit/cpio/pkg/ocibridge"
)

func newCreateCommand() *cobra.Command {
	var format string
	var fromOCI string
	var strict bool

	cmd := &cobra.Command{
		Use:   "create <archive> [paths...]",
		Short: "Create a cpio archive from files, directories or an OCI image layout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			return runCreate(args[0], args[1:], f, fromOCI, strict)
		},
	}
	cmd.Flags().StringVar(&format, "format", "newc", "archive format: newc, crc or bin")
	cmd.Flags().StringVar(&fromOCI, "from-oci", "", "build the archive from an OCI image layout directory instead of paths")
	cmd.Flags().BoolVar(&strict, "strict-hardlinks", false, "reject a second entry reusing an already-seen hard-link group")
	return cmd
}

func parseFormat(s string) (cpio.Format, error) {
	switch s {
	case "newc", "":
		return cpio.FormatNewASCII, nil
	case "crc":
		return cpio.FormatNewCRC, nil
	case "bin":
		return cpio.FormatOldBinary, nil
	default:
		return 0, fmt.Errorf("unknown format %q (want newc, crc or bin)", s)
	}
}

func runCreate(archivePath string, paths []string, format cpio.Format, fromOCI string, strict bool) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", archivePath, err)
	}
	defer out.Close()

	opts := []cpio.Option{cpio.WithFormat(format)}
	if strict {
		opts = append(opts, cpio.WithStrictHardLinks())
	}
	b := cpio.NewBuilder(out, opts...)

	if fromOCI != "" {
		if err := ocibridge.Convert(fromOCI, b); err != nil {
			return err
		}
	} else {
		for _, root := range paths {
			if err := appendTree(b, root); err != nil {
				return err
			}
		}
	}

	if err := b.Finish(); err != nil {
		return fmt.Errorf("finish %s: %w", archivePath, err)
	}
	return out.Close()
}

func appendTree(b *cpio.Builder, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := appendEntryFromPath(b, path, filepath.ToSlash(path)); err != nil {
			return fmt.Errorf("append %s: %w", path, err)
		}
		return nil
	})
}
