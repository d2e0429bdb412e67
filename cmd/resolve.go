package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
)

func newResolveCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "resolve <case-number|url>",
		Short: "Resolve a single case and print the JSON result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if a == nil {
				return errors.New("application not initialized")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.Config().RequestTimeout())
			defer cancel()

			res := a.Service().Parse(ctx, auction.Request{Raw: args[0], Force: force})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the response cache and raw archive")
	return cmd
}
