package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cpiokit/cpio/pkg/cpio"
)

func newListCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "list <archive>",
		Short: "List the entries in a cpio archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(args[0], long)
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show mode, owner and size like ls -l")
	return cmd
}

func runList(path string, long bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	a := cpio.NewArchive(f)
	for {
		h, err := a.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if long {
			fmt.Printf("%s %4d/%-4d %10d %s %s\n",
				h.FileMode(), h.UID, h.GID, h.FileSize,
				h.ModTime.Format("2006-01-02 15:04"), h.Name)
		} else {
			fmt.Println(h.Name)
		}
	}
}
