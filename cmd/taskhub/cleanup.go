package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired verification codes once and exit",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := newApp(cfg, pool, nil)
	if err != nil {
		return err
	}

	removed, err := a.codes.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweeping expired codes: %w", err)
	}
	fmt.Printf("removed %d expired codes\n", removed)
	return nil
}
