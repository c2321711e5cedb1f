package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	resdex "github.com/kailas-cloud/resdex/pkg/sdk"
)

// fixtures is what create-test-fixtures leaves behind.
type fixtures struct {
	Provider   resdex.Provider  `json:"provider"`
	Vocabulary resdex.Type      `json:"vocabulary"`
	Type       resdex.Type      `json:"type"`
	Terms      []resdex.Created `json:"terms"`
	Documents  []resdex.Created `json:"documents"`
	File       resdex.File      `json:"file"`
}

func newFixturesCmd(c *cli) *cobra.Command {
	spec := resdex.ProviderSpec{Name: "Test provider", Prefix: "test"}
	cmd := &cobra.Command{
		Use:   "create-test-fixtures",
		Short: "Create a provider with a vocabulary, a document type and sample content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cl, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer cl.Close()

			fx, err := createFixtures(ctx, cl, spec)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), fx)
		},
	}
	cmd.Flags().StringVar(&spec.Name, "name", spec.Name, "Provider name")
	cmd.Flags().StringVar(&spec.Prefix, "prefix", spec.Prefix, "Provider prefix")
	return cmd
}

func createFixtures(ctx context.Context, cl client, spec resdex.ProviderSpec) (fixtures, error) {
	var fx fixtures
	p, err := cl.CreateProvider(ctx, spec)
	if err != nil {
		return fx, fmt.Errorf("create provider: %w", err)
	}
	fx.Provider = p

	s, err := cl.AsProvider(ctx, p.UUID)
	if err != nil {
		return fx, err
	}

	fx.Vocabulary, err = s.CreateType(ctx, resdex.TypeSpec{
		Kind:        resdex.Term,
		MachineName: "tags",
		Label:       "Tags",
		Endpoint:    "tags",
		Flags:       resdex.Flags{Shared: true},
	})
	if err != nil {
		return fx, fmt.Errorf("create vocabulary: %w", err)
	}
	tags := fx.Vocabulary.MachineName

	red, err := s.CreateResource(ctx, resdex.Term, tags, map[string]any{"name": "Red", "published": true})
	if err != nil {
		return fx, fmt.Errorf("create term: %w", err)
	}
	blue, err := s.CreateResource(ctx, resdex.Term, tags, map[string]any{"name": "Blue", "published": true})
	if err != nil {
		return fx, fmt.Errorf("create term: %w", err)
	}
	navy, err := s.CreateResource(ctx, resdex.Term, tags, map[string]any{
		"name":      "Navy",
		"parent":    blue.UUID,
		"published": true,
	})
	if err != nil {
		return fx, fmt.Errorf("create term: %w", err)
	}
	fx.Terms = []resdex.Created{red, blue, navy}

	fx.Type, err = s.CreateType(ctx, resdex.TypeSpec{
		Kind:        resdex.Document,
		MachineName: "article",
		Label:       "Article",
		Endpoint:    "articles",
		Flags:       resdex.Flags{Shared: true, UseRevisions: true},
	})
	if err != nil {
		return fx, fmt.Errorf("create type: %w", err)
	}
	article := fx.Type.MachineName

	fields := []resdex.FieldSpec{
		{Name: "body", Type: "string_long", Label: "Body"},
		{Name: "pages", Type: "integer", Label: "Pages"},
		{Name: "notes", Type: "string", Label: "Notes", Private: true},
		{
			Name: "tags", Type: "entity_reference", Label: "Tags", Multiple: true,
			TargetKind: resdex.Term, TargetBundle: tags,
		},
	}
	for _, f := range fields {
		if err := s.CreateField(ctx, resdex.Document, article, f); err != nil {
			return fx, err
		}
	}

	fx.File, err = s.CreateFile(ctx, resdex.FileSpec{
		Filename: "fixture.txt",
		Mime:     "text/plain",
		Content:  []byte(defaultTestContent),
	})
	if err != nil {
		return fx, fmt.Errorf("create file: %w", err)
	}

	docs := []map[string]any{
		{
			"title": "First article", "published": true, "body": "Opening text",
			"pages": 3, "tags": []string{red.UUID, navy.UUID}, "files": []string{fx.File.MediaUUID},
		},
		{"title": "Second article", "published": true, "pages": 12, "tags": []string{blue.UUID}},
		{"title": "Draft article", "published": false, "notes": "internal"},
	}
	for _, body := range docs {
		d, err := s.CreateResource(ctx, resdex.Document, article, body)
		if err != nil {
			return fx, fmt.Errorf("create document: %w", err)
		}
		fx.Documents = append(fx.Documents, d)
	}
	return fx, nil
}

func newResetCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset-for-testing",
		Short: "Drop all resdex indexes and keys under the configured prefix",
		Long: `Drops the documents and terms indexes and every per-type index, then
deletes all keys under the key prefix and recreates the empty kind
indexes. Refused in production unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.env == "production" && !force {
				return fmt.Errorf("refusing to reset the production environment without --force")
			}
			ctx := cmd.Context()
			cl, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer cl.Close()

			rep, err := cl.Reset(ctx)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), map[string]any{
				"prefix":  c.cfg.Storage.KeyPrefix,
				"indexes": rep.Indexes,
				"keys":    rep.Keys,
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Allow resetting production")
	return cmd
}
