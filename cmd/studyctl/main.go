// Package main provides studyctl, the operator CLI for the study tracker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/studyplus/tracker/internal/auth"
	"github.com/studyplus/tracker/internal/config"
	"github.com/studyplus/tracker/internal/db"
	"github.com/studyplus/tracker/internal/jobs"
	"github.com/studyplus/tracker/internal/library"
	"github.com/studyplus/tracker/internal/playlist"
	"github.com/studyplus/tracker/internal/searchcache"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/youtube"
	"github.com/studyplus/tracker/migrations"
)

var version = "dev"

var (
	errNoDatabase = errors.New("DATABASE_URL is not set")
	errNoRedis    = errors.New("REDIS_URL is not set")
	errNoSecret   = errors.New("JWT_SECRET is not set")
	errNoAPIKey   = errors.New("YOUTUBE_API_KEY is not set")
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveVersion prefers the ldflags version and falls back to the module
// version recorded by go install.
func resolveVersion(ldflags string, info *debug.BuildInfo) string {
	if ldflags != "dev" {
		return ldflags
	}
	if info != nil && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func buildVersion() string {
	info, _ := debug.ReadBuildInfo()
	return resolveVersion(version, info)
}

// newRootCmd creates the root command for studyctl.
func newRootCmd() *cobra.Command {
	var envDir string

	rootCmd := &cobra.Command{
		Use:          "studyctl",
		Short:        "Operate the study tracker backend",
		Long:         "studyctl runs migrations, mints access tokens and triggers maintenance jobs for the study tracker.",
		Version:      buildVersion(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFiles(envDir)
		},
	}

	rootCmd.SetVersionTemplate("studyctl version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&envDir, "env-dir", "", "Directory holding .env and .env.local")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newCleanupCacheCmd())
	rootCmd.AddCommand(newRefreshDurationsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return errNoDatabase
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn, err := db.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			n, err := db.Migrate(ctx, conn, migrations.FS)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Maximum time to spend migrating")

	return cmd
}

// newTokenCmd creates the token subcommand.
func newTokenCmd() *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user",
		Long:  "Mint a bearer token signed with JWT_SECRET, for local testing and support access.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errNoSecret
			}

			var opts []auth.Option
			if ttl > 0 {
				opts = append(opts, auth.WithExpiry(ttl))
			}
			tok, err := auth.NewService(secret, opts...).GenerateAccessToken(userID)
			if err != nil {
				return fmt.Errorf("failed to mint token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID to issue the token for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: service default)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// newCleanupCacheCmd creates the cleanup-cache subcommand.
func newCleanupCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-cache",
		Short: "Purge expired search cache entries from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL := os.Getenv("REDIS_URL")
			if rawURL == "" {
				return errNoRedis
			}
			opts, err := redis.ParseURL(rawURL)
			if err != nil {
				return fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			client := redis.NewClient(opts)
			defer client.Close()

			n, err := searchcache.NewRedisCache(client).DeleteExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired cache entries\n", n)
			return nil
		},
	}
}

// newRefreshDurationsCmd creates the refresh-durations subcommand.
func newRefreshDurationsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "refresh-durations",
		Short: "Look up durations for videos saved without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return errNoDatabase
			}
			key := os.Getenv("YOUTUBE_API_KEY")
			if key == "" {
				return errNoAPIKey
			}

			conn, err := db.Open(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			importer := library.NewImporter(
				video.NewPostgresRepository(conn),
				playlist.NewPostgresRepository(conn),
				youtube.NewClient(key),
				library.WithLogger(logger),
			)

			res, err := importer.RefreshAllDurations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d of %d videos\n", res.Updated, res.Total)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", jobs.DefaultRefreshBatch, "Maximum number of videos to look up")

	return cmd
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the studyctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "studyctl version %s\n", buildVersion())
		},
	}
}
