package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nordlicht-IT-Solutions/nordlicht-chat-sdk-go/nordchat"
)

type listFunc func(*nordchat.Client, context.Context) ([]string, error)

// NewListCommand creates a command printing one name per line from fetch.
func NewListCommand(rootOpts *RootOptions, use, short string, fetch listFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := connect(ctx, cmd, rootOpts)
			if err != nil {
				return err
			}
			defer client.Close()

			names, err := fetch(client, ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
