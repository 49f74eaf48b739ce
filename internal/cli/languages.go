package cli

import (
	"fmt"

	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/spf13/cobra"
)

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List languages shown with a display name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, lang := range transcribe.Languages() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", lang.Code, transcribe.LanguageLabel(lang.Code))
			}
			return nil
		},
	}
}
