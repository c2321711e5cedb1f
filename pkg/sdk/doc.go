// Package resdex is an embedded client for resdex storage. It connects to
// Redis or Valkey directly and runs the same use cases as the API server,
// without the HTTP layer. resdexctl is built on it.
//
//	client, _ := resdex.New(ctx, resdex.WithRedis("localhost:6379", ""))
//	p, _ := client.CreateProvider(ctx, resdex.ProviderSpec{Name: "Acme", Prefix: "acme"})
//	s, _ := client.As(ctx, p.APIKey)
//	_, _ = s.CreateType(ctx, resdex.TypeSpec{
//	    Kind:        resdex.Document,
//	    MachineName: "article",
//	    Label:       "Article",
//	    Flags:       resdex.Flags{Shared: true},
//	})
//	_, _ = s.CreateResource(ctx, resdex.Document, "acme_article", map[string]any{"title": "Hello"})
package resdex
