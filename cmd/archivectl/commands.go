package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/repository"
	"github.com/chilahati-archive/archive-api/internal/service"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
	"github.com/chilahati-archive/archive-api/pkg/config"
	"github.com/chilahati-archive/archive-api/pkg/database"
)

const commandTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "archivectl",
		Short:         "Operate the Chilahati archive",
		Long:          "Inspect the category registry, resolve browse pages, apply the schema and mint development tokens.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCategoriesCmd(), newResolveCmd(), newMigrateCmd(), newTokenCmd())
	return root
}

func newCategoriesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Print the registered categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCategories(cmd.OutOrStdout(), taxonomy.Default(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printCategories(w io.Writer, registry *taxonomy.Registry, asJSON bool) error {
	categories := registry.Categories()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(categories)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tFAMILY\tSUB-TYPE FIELD\tSUB-TYPES")
	for _, d := range categories {
		field := d.SubTypeField
		if field == "" {
			field = "-"
		}
		values := "-"
		if len(d.SubTypes) > 0 {
			values = strings.Join(d.SubTypes, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Label, d.Family, field, values)
	}
	return tw.Flush()
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <category> [subType]",
		Short: "Resolve a browse page against the configured database",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			db, err := database.NewPostgres(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			registry := taxonomy.Default()
			repo := repository.NewArchiveRepository(db, registry, repository.RetryPolicy{Attempts: cfg.Database.ReadRetries, Backoff: cfg.Database.RetryBackoff})
			svc := service.NewTaxonomyService(registry, repo, nil, nil, 0, zap.NewNop())

			var result interface{}
			if len(args) == 2 {
				result, err = svc.ListItems(ctx, args[0], args[1])
			} else {
				result, err = svc.ListSubCategories(ctx, args[0])
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the archive schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			db, err := database.NewPostgres(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied to %s\n", cfg.Database.Name)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		role     string
		name     string
		secret   string
		issuer   string
		lifetime time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a development bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userRole := models.UserRole(strings.ToLower(role))
			switch userRole {
			case models.RoleAdmin, models.RoleSupervisor, models.RoleContributor:
			default:
				return fmt.Errorf("unknown role %q (admin, supervisor, contributor)", role)
			}
			if secret == "" || issuer == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if secret == "" {
					secret = cfg.JWT.Secret
				}
				if issuer == "" {
					issuer = cfg.JWT.Issuer
				}
			}
			identity := service.NewIdentityService(service.IdentityConfig{Secret: secret, Issuer: issuer, Expiry: lifetime})
			token, expiresAt, err := identity.IssueToken(args[0], userRole, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "admin, supervisor or contributor")
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer (defaults to JWT_ISSUER)")
	cmd.Flags().DurationVar(&lifetime, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
