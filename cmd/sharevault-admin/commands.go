package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/spf13/cobra"
	"github.com/tendant/sharevault/internal/logging"
	"github.com/tendant/sharevault/pkg/sharevault"
	"github.com/tendant/sharevault/pkg/sharevault/api"
	"github.com/tendant/sharevault/pkg/sharevault/cache"
	"github.com/tendant/sharevault/pkg/sharevault/config"
	"github.com/tendant/sharevault/pkg/sharevault/seo"
)

// serviceFromFlags loads the configuration and opens the repository
func serviceFromFlags(cmd *cobra.Command) (*config.Config, sharevault.Service, config.Closer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), "text", level)
	if err != nil {
		return nil, nil, nil, err
	}

	svc, closer, err := cfg.BuildService(cmd.Context(), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, svc, closer, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// revalidateTags are the tags a backfill makes stale
var revalidateTags = []string{cache.TagPosts, cache.TagCategories, cache.TagSitemap}

func NewBackfillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-slugs",
		Short: "Assign slugs to posts created without one",
		Long: `Assign a unique slug to every post that has none and rebuild the
category slug index from the categories currently in use.

Only this process's cache is invalidated. A running server keeps serving its
memoized listings until their TTL expires unless it is told to drop them:

  POST /api/revalidate  {"tags": ["posts", "categories", "sitemap"]}

authenticated with the revalidation API key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, closer, err := serviceFromFlags(cmd)
			if err != nil {
				return err
			}
			defer closer()

			report, err := svc.BackfillSlugs(cmd.Context())
			if err != nil {
				return fmt.Errorf("backfill failed: %w", err)
			}

			if report.SlugsAssigned > 0 || report.CategoriesIndexed > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Revalidate running servers with tags: %s\n", strings.Join(revalidateTags, ", "))
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "Scanned: %d\nSlugs assigned: %d\nCategories indexed: %d\n",
				report.Scanned, report.SlugsAssigned, report.CategoriesIndexed)
			for _, slug := range report.Assigned {
				fmt.Fprintf(out, "  %s\n", slug)
			}
			return nil
		},
	}
}

func NewCategoriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories with their published post counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, closer, err := serviceFromFlags(cmd)
			if err != nil {
				return err
			}
			defer closer()

			categories, err := svc.ListCategories(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				if categories == nil {
					categories = []sharevault.CategorySummary{}
				}
				return printJSON(out, categories)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tPOSTS")
			for _, c := range categories {
				fmt.Fprintf(w, "%s\t%s\t%d\n", c.Slug, c.Name, c.Count)
			}
			return w.Flush()
		},
	}
}

func NewPostsCommand() *cobra.Command {
	var category string
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List published posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, closer, err := serviceFromFlags(cmd)
			if err != nil {
				return err
			}
			defer closer()

			req := sharevault.PageRequest{Offset: offset, Limit: limit}
			var page *sharevault.Page[sharevault.ContentItem]
			if category != "" {
				cp, err := svc.ListCategoryPosts(cmd.Context(), category, req)
				if err != nil {
					return fmt.Errorf("failed to list posts: %w", err)
				}
				page = &cp.Page
			} else {
				page, err = svc.ListPosts(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("failed to list posts: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(out, page)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tSLUG\tCATEGORY\tTITLE")
			for _, item := range page.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.CreatedAt.Format(time.DateOnly), item.Slug, item.Category, item.Title)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d-%d of %d\n", page.Offset, page.Offset+len(page.Items), page.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "category slug to filter by")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of posts to skip")
	cmd.Flags().IntVar(&limit, "limit", sharevault.DefaultLimit, "maximum number of posts")
	return cmd
}

func NewSitemapCommand() *cobra.Command {
	var images bool

	cmd := &cobra.Command{
		Use:   "sitemap",
		Short: "Print the sitemap the server would serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, svc, closer, err := serviceFromFlags(cmd)
			if err != nil {
				return err
			}
			defer closer()

			var doc []byte
			if images {
				items, err := svc.ImageItems(cmd.Context())
				if err != nil {
					return err
				}
				doc, err = seo.ImageSitemap(cfg.SiteURL, items)
				if err != nil {
					return err
				}
			} else {
				items, err := svc.SitemapItems(cmd.Context())
				if err != nil {
					return err
				}
				categories, err := svc.ListCategories(cmd.Context())
				if err != nil {
					return err
				}
				doc, err = seo.Sitemap(cfg.SiteURL, seo.DefaultStaticPages, items, categories)
				if err != nil {
					return err
				}
			}

			_, err = cmd.OutOrStdout().Write(doc)
			return err
		},
	}

	cmd.Flags().BoolVar(&images, "images", false, "print the image sitemap instead")
	return cmd
}

func NewTokenCommand() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token signed with AUTH_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			if subject == "" {
				return errors.New("--sub is required")
			}

			claims := map[string]interface{}{"sub": subject}
			jwtauth.SetIssuedNow(claims)
			if ttl > 0 {
				jwtauth.SetExpiryIn(claims, ttl)
			}
			_, token, err := api.NewTokenAuth(cfg.Auth.JWTSecret).Encode(claims)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "user id recorded as the author of posts created with the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}

func NewPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			switch cfg.Database.Type {
			case config.DatabasePostgres:
				if err := config.PingPostgres(cmd.Context(), cfg.Database.URL, cfg.Database.PostgresSchema); err != nil {
					return err
				}
			default:
				_, _, closer, err := serviceFromFlags(cmd)
				if err != nil {
					return err
				}
				closer()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", cfg.Database.Type)
			return nil
		},
	}
}
