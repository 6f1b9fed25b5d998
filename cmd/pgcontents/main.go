package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quantopian/pgcontents/internal/config"
	"github.com/quantopian/pgcontents/internal/crypto"
	"github.com/quantopian/pgcontents/internal/database/migrations"
	"github.com/quantopian/pgcontents/internal/filetypes"
	"github.com/quantopian/pgcontents/internal/repository/postgres"
	"github.com/quantopian/pgcontents/internal/service"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// cliApp bundles the connections and services behind the CLI commands.
// The caller must defer Close.
type cliApp struct {
	cfg         *config.Config
	pool        *pgxpool.Pool
	contents    *service.ContentsService
	checkpoints *service.CheckpointsService
	reencrypt   *service.ReencryptService
	logFile     *os.File
}

func (a *cliApp) Close() {
	a.pool.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// openDatabase loads the environment config and connects the pool. Shared
// by newApp and the migrate commands, which must run against a database
// whose schema may not exist yet.
func openDatabase(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	_ = godotenv.Load()
	cfg := config.Load()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return cfg, pool, nil
}

// newApp wires repositories and services for a data command. operation
// tags log records so interleaved runs stay attributable.
func newApp(ctx context.Context, operation string) (*cliApp, error) {
	cfg, pool, err := openDatabase(ctx)
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg, operation)
	if err != nil {
		pool.Close()
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schema out of date (run 'pgcontents migrate'): %w", err)
	}

	tables := postgres.NewTableNames(postgres.DefaultSchema)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	userRepo := postgres.NewUserRepository(repoConfig)
	dirRepo := postgres.NewDirectoryRepository(repoConfig)
	fileRepo := postgres.NewFileRepository(repoConfig)
	checkpointRepo := postgres.NewCheckpointRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	registry, err := filetypes.NewRegistry()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading filetype registry: %w", err)
	}

	cryptoFactory := crypto.FactoryFromPasswords(cfg.EncryptionPassword, cfg.EncryptionFallbacks...)

	return &cliApp{
		cfg:  cfg,
		pool: pool,
		contents: service.NewContentsService(
			userRepo, dirRepo, fileRepo, checkpointRepo, txManager,
			registry, cryptoFactory, cfg.MaxFileSizeBytes, logger,
		),
		checkpoints: service.NewCheckpointsService(
			fileRepo, dirRepo, checkpointRepo, txManager,
			cryptoFactory, cfg.MaxFileSizeBytes, logger,
		),
		reencrypt: service.NewReencryptService(
			userRepo, fileRepo, checkpointRepo, txManager, logger,
		),
		logFile: logFile,
	}, nil
}

// newLogger writes structured logs to stderr, and also to a timestamped
// file when PGCONTENTS_LOG_DIR is set. Text output on a terminal, JSON
// when piped.
func newLogger(cfg *config.Config, operation string) (*slog.Logger, *os.File, error) {
	var w io.Writer = os.Stderr
	var f *os.File
	if cfg.LogDir != "" {
		var err error
		f, err = config.SetupLogFile(cfg.LogDir, "pgcontents", 10)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(os.Stderr, f)
	}

	level := slog.LevelInfo
	if cfg.Environment == "dev" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("operation", operation), f, nil
}

// promptPassword reads a password from the terminal with echo disabled.
func promptPassword(prompt string) (string, error) {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return "", fmt.Errorf("no terminal available for password prompt")
	}

	fmt.Fprint(os.Stderr, prompt)
	passwordBytes, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(passwordBytes), nil
}

var rootCmd = &cobra.Command{
	Use:   "pgcontents",
	Short: "Administer a pgcontents database",
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, pool, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := migrations.MigrateUp(stdlib.OpenDBFromPool(pool)); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		fmt.Println("Schema is up to date")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations, dropping every table",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to drop the schema without --force")
		}

		_, pool, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := migrations.MigrateDown(stdlib.OpenDBFromPool(pool)); err != nil {
			return fmt.Errorf("rolling back: %w", err)
		}
		fmt.Println("Schema rolled back")
		return nil
	},
}

// users command
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all user ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "users-list")
		if err != nil {
			return err
		}
		defer a.Close()

		userIDs, err := a.contents.ListUsers(cmd.Context())
		if err != nil {
			return err
		}

		if len(userIDs) == 0 {
			fmt.Println("No users.")
			return nil
		}
		for _, id := range userIDs {
			fmt.Println(id)
		}
		return nil
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create USER",
	Short: "Create a user and their root directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "users-create")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.contents.EnsureUser(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		fmt.Printf("Created user %s\n", args[0])
		return nil
	},
}

var usersPurgeCmd = &cobra.Command{
	Use:   "purge USER",
	Short: "Delete a user with all their files and checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to purge user %s without --force", args[0])
		}

		a, err := newApp(cmd.Context(), "users-purge")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.contents.PurgeUser(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("purging user: %w", err)
		}
		fmt.Printf("Purged user %s\n", args[0])
		return nil
	},
}

// checkpoints command
var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage checkpoint snapshots",
}

var checkpointsExportCmd = &cobra.Command{
	Use:   "export DIRECTORY",
	Short: "Write each path's newest checkpoint to a directory tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		a, err := newApp(cmd.Context(), "checkpoints-export")
		if err != nil {
			return err
		}
		defer a.Close()

		dir, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		userIDs := []string{user}
		if user == "" {
			userIDs, err = a.contents.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
		}

		for _, userID := range userIDs {
			if err := exportUserCheckpoints(cmd.Context(), a, dir, userID); err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
		}
		return nil
	},
}

// exportUserCheckpoints writes one user's newest checkpoint per path under
// dir/USER, mirroring the stored hierarchy on disk.
func exportUserCheckpoints(ctx context.Context, a *cliApp, dir, userID string) error {
	cps, err := a.checkpoints.LatestPerPath(ctx, userID)
	if err != nil {
		return err
	}

	for _, cp := range cps {
		content, err := a.checkpoints.GetContent(ctx, userID, cp.Path, cp.ID)
		if err != nil {
			return fmt.Errorf("checkpoint %d for %s: %w", cp.ID, cp.Path, err)
		}

		target := filepath.Join(dir, userID, filepath.FromSlash(cp.Path))
		if !strings.HasPrefix(target, dir+string(filepath.Separator)) {
			return fmt.Errorf("checkpoint path %q escapes %s", cp.Path, dir)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0644); err != nil {
			return err
		}
	}

	fmt.Printf("Exported %d checkpoint(s) for %s\n", len(cps), userID)
	return nil
}

var checkpointsClearCmd = &cobra.Command{
	Use:   "clear USER PATH",
	Short: "Delete every checkpoint recorded for a path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "checkpoints-clear")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.checkpoints.DeleteAllForPath(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("clearing checkpoints: %w", err)
		}
		fmt.Printf("Cleared checkpoints for %s\n", args[1])
		return nil
	},
}

// reencrypt command
var reencryptCmd = &cobra.Command{
	Use:   "reencrypt",
	Short: "Rewrite stored content under a new encryption password",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		oldPassword, err := promptPassword("Old password (blank if content is unencrypted): ")
		if err != nil {
			return err
		}
		newPassword, err := promptPassword("New password: ")
		if err != nil {
			return err
		}
		if newPassword == "" {
			return fmt.Errorf("new password must not be empty (use unencrypt to strip encryption)")
		}

		oldFactory := crypto.FactoryFromPasswords(oldPassword)
		newFactory := crypto.SinglePasswordFactory(newPassword)

		a, err := newApp(cmd.Context(), "reencrypt")
		if err != nil {
			return err
		}
		defer a.Close()

		if user != "" {
			err = a.reencrypt.ReencryptUser(cmd.Context(), user, oldFactory, newFactory)
		} else {
			err = a.reencrypt.ReencryptAllUsers(cmd.Context(), oldFactory, newFactory)
		}
		if err != nil {
			return fmt.Errorf("re-encrypting: %w", err)
		}
		fmt.Println("Re-encryption complete")
		return nil
	},
}

// unencrypt command
var unencryptCmd = &cobra.Command{
	Use:   "unencrypt",
	Short: "Strip encryption from stored content",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		oldPassword, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		if oldPassword == "" {
			return fmt.Errorf("password must not be empty")
		}
		oldFactory := crypto.SinglePasswordFactory(oldPassword)

		a, err := newApp(cmd.Context(), "unencrypt")
		if err != nil {
			return err
		}
		defer a.Close()

		if user != "" {
			err = a.reencrypt.UnencryptUser(cmd.Context(), user, oldFactory)
		} else {
			err = a.reencrypt.UnencryptAllUsers(cmd.Context(), oldFactory)
		}
		if err != nil {
			return fmt.Errorf("unencrypting: %w", err)
		}
		fmt.Println("Unencryption complete")
		return nil
	},
}

func init() {
	// migrate subcommands
	migrateCmd.AddCommand(migrateDownCmd)
	migrateDownCmd.Flags().Bool("force", false, "Actually drop the schema")

	// users subcommands
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersPurgeCmd)
	usersPurgeCmd.Flags().Bool("force", false, "Actually delete the user's content")

	// checkpoints subcommands
	checkpointsCmd.AddCommand(checkpointsExportCmd)
	checkpointsExportCmd.Flags().String("user", "", "Export a single user instead of all users")
	checkpointsCmd.AddCommand(checkpointsClearCmd)

	// root commands
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(reencryptCmd)
	reencryptCmd.Flags().String("user", "", "Re-encrypt a single user instead of all users")
	rootCmd.AddCommand(unencryptCmd)
	unencryptCmd.Flags().String("user", "", "Unencrypt a single user instead of all users")
}
