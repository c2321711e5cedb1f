package main

import (
	"fmt"

	"github.com/spf13/cobra"

	resdex "github.com/kailas-cloud/resdex/pkg/sdk"
)

func newProviderCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage API providers",
	}
	cmd.AddCommand(newProviderCreateCmd(c), newProviderListCmd(c))
	return cmd
}

func newProviderCreateCmd(c *cli) *cobra.Command {
	var spec resdex.ProviderSpec
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a provider and print its keys",
		Long: `Registers a provider with a generated read-write key, read-only key and
shared secret. The secret signs direct download links.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cl, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer cl.Close()

			p, err := cl.CreateProvider(ctx, spec)
			if err != nil {
				return fmt.Errorf("create provider: %w", err)
			}
			return c.print(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVar(&spec.Name, "name", "", "Provider name (required)")
	cmd.Flags().StringVar(&spec.Prefix, "prefix", "", "Machine name prefix, lowercase alphanumeric")
	cmd.Flags().StringVar(&spec.DropFolder, "drop-folder", "", "Folder scanned for incoming files")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProviderListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cl, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer cl.Close()

			list, err := cl.Providers(ctx)
			if err != nil {
				return fmt.Errorf("list providers: %w", err)
			}
			return c.print(cmd.OutOrStdout(), list)
		},
	}
}
