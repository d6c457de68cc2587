package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/tphakala/automarker/internal/buildinfo"
)

// Command creates a new command that prints build information.
func Command(info *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "automarker %s (built %s, %s %s/%s)\n",
				info.Version(), info.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
