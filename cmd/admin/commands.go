package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	app "github.com/etitcombe/blogpom"
	"github.com/etitcombe/blogpom/db"
	"github.com/etitcombe/blogpom/rand"
)

const openTimeout = 30 * time.Second

func newRootCmd(defaultDB string) *cobra.Command {
	var dbURL string

	root := &cobra.Command{
		Use:           "admin",
		Short:         "blogpom database housekeeping",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbURL, "db", defaultDB, "Database URL (defaults to $DATABASE_URL)")

	openStore := func(cmd *cobra.Command) (db.Store, error) {
		if dbURL == "" {
			return nil, errors.New("no database: pass --db or set DATABASE_URL")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), openTimeout)
		defer cancel()
		return db.Open(ctx, dbURL)
	}

	root.AddCommand(
		newMigrateCmd(openStore),
		newSeedCmd(openStore),
		newFlashKeyCmd(),
	)
	return root
}

// Opening a store applies pending migrations, so migrate only opens and
// reports.
func newMigrateCmd(openStore func(*cobra.Command) (db.Store, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date, %d posts\n", n)
			return nil
		},
	}
}

func newSeedCmd(openStore func(*cobra.Command) (db.Store, error)) *cobra.Command {
	var posts int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if posts < 1 {
				return fmt.Errorf("--posts must be at least 1, got %d", posts)
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.CreateMany(cmd.Context(), samplePosts(posts))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d posts\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&posts, "posts", 10, "Number of posts to insert")
	return cmd
}

func newFlashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flash-key",
		Short: "Print a new random FLASH_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := rand.KeyString()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	}
}

func samplePosts(n int) []app.PostForm {
	forms := make([]app.PostForm, n)
	for i := range forms {
		forms[i] = app.NewPostForm(
			fmt.Sprintf("Sample post %d", i+1),
			fmt.Sprintf("This is sample post number %d.", i+1),
		)
	}
	return forms
}
