package formats

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tphakala/automarker/internal/decoder"
)

// Command creates a new command that lists the supported file extensions.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the audio file extensions that can be loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(decoder.SupportedExtensions(), " "))
			return err
		},
	}
}
