package main

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	resdex "github.com/kailas-cloud/resdex/pkg/sdk"
)

const defaultTestContent = "resdex test file\n"

type signedLinkView struct {
	resdex.SignedLink
	URL string `json:"url,omitempty"`
}

func newFileURLHashCmd(c *cli) *cobra.Command {
	var (
		providerUUID string
		media        bool
	)
	cmd := &cobra.Command{
		Use:   "create-file-url-hash <target-uuid> <filename>",
		Short: "Print the signed download hash and path of a file or media",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cl, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer cl.Close()

			kind := resdex.FileLink
			if media {
				kind = resdex.MediaLink
			}
			link, err := cl.SignLink(ctx, providerUUID, kind, args[0], args[1])
			if err != nil {
				return fmt.Errorf("sign link: %w", err)
			}
			view := signedLinkView{SignedLink: link}
			if base := c.cfg.HTTP.PublicBaseURL; base != "" {
				view.URL = strings.TrimSuffix(base, "/") + link.Path
			}
			return c.print(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&providerUUID, "provider", "", "Provider whose secret signs the link (required)")
	cmd.Flags().BoolVar(&media, "media", false, "Sign a media container instead of a file version")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func newTestFileCmd(c *cli) *cobra.Command {
	var (
		apiKey, providerUUID string
		spec                 resdex.FileSpec
		content, from        string
	)
	cmd := &cobra.Command{
		Use:   "create-test-file",
		Short: "Upload a file owned by a provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			data := []byte(content)
			if from != "" {
				var err error
				if data, err = afero.ReadFile(afero.NewOsFs(), from); err != nil {
					return fmt.Errorf("read %s: %w", from, err)
				}
			}
			spec.Content = data

			cl, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer cl.Close()

			s, err := sessionFor(ctx, cl, apiKey, providerUUID)
			if err != nil {
				return err
			}
			f, err := s.CreateFile(ctx, spec)
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}
			return c.print(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Read-write key of the owning provider")
	cmd.Flags().StringVar(&providerUUID, "provider", "", "Owning provider uuid")
	cmd.Flags().StringVar(&spec.Filename, "filename", "test.txt", "Stored file name")
	cmd.Flags().StringVar(&spec.Mime, "mime", "", "Content type (derived when empty)")
	cmd.Flags().BoolVar(&spec.Private, "private", false, "Store under the private root")
	cmd.Flags().StringVar(&content, "content", defaultTestContent, "File content")
	cmd.Flags().StringVar(&from, "from", "", "Read content from a local file instead")
	cmd.MarkFlagsMutuallyExclusive("api-key", "provider")
	cmd.MarkFlagsMutuallyExclusive("content", "from")
	return cmd
}
