// Command cpio lists, extracts and creates cpio archives in the New
// ASCII, New CRC and Old Binary encodings this module implements.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.StandardLogger()

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cpio",
		Short:         "Read and write cpio archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			log.SetLevel(logrus.DebugLevel)
		}
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newExtractCommand())
	cmd.AddCommand(newCreateCommand())
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
