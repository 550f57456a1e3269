package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lumenjournal/lumen/internal/auth"
	"github.com/lumenjournal/lumen/internal/config"
	"github.com/lumenjournal/lumen/pkg/models"
)

// seedEntries are the demo posts written by lumen seed.
var seedEntries = []struct {
	handle, alias, body, mood string
}{
	{"demo-owl@lumen.local", "night-owl", "Couldn't sleep again, so I wrote instead. It helped.", "restless"},
	{"demo-fox@lumen.local", "quiet-fox", "Walked to the lake before work. The fog was worth it.", "calm"},
	{"demo-river@lumen.local", "calm-river", "Three weeks into the new job and I finally exhaled.", "relieved"},
}

func newSeedCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with demo accounts and entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config) error {
	stores, err := openStores(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = stores.Close() }()

	hash, err := auth.HashPassword("demo-password")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, entry := range seedEntries {
		user := &models.User{
			ID:           uuid.NewString(),
			Handle:       entry.handle,
			Alias:        entry.alias,
			PasswordHash: hash,
			CreatedAt:    now,
		}
		if err := stores.Users.Create(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", entry.handle, err)
		}
		post := &models.Post{
			ID:        uuid.NewString(),
			AuthorID:  user.ID,
			Body:      entry.body,
			Mood:      entry.mood,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}
		if err := stores.Posts.Create(ctx, post); err != nil {
			return fmt.Errorf("seed post for %s: %w", entry.alias, err)
		}
		fmt.Printf("seeded %s (%s)\n", entry.alias, entry.handle)
	}
	fmt.Println("demo password: demo-password")
	return nil
}
