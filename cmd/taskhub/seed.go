package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alecgard/taskhub/internal/notify"
	"github.com/alecgard/taskhub/internal/teamtask"
	"github.com/alecgard/taskhub/internal/todo"
	"github.com/alecgard/taskhub/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo users, a team and its tasks",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type demoUser struct {
	email    string
	username string
}

var demoUsers = []demoUser{
	{email: "alice@example.com", username: "alice"},
	{email: "bob@example.com", username: "bob"},
	{email: "carol@example.com", username: "carol"},
}

var demoTasks = []string{
	"Write the release notes",
	"Review the onboarding checklist",
	"Book the team offsite",
}

func runSeed(cmd *cobra.Command, args []string) error {
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

	users := make([]*user.User, 0, len(demoUsers))
	for _, du := range demoUsers {
		u, created, err := a.users.GetOrCreate(ctx, notify.ChannelEmail, du.email)
		if err != nil {
			return fmt.Errorf("creating user %s: %w", du.email, err)
		}
		if created {
			if u, err = a.users.UpdateUsername(ctx, u.ID, du.username); err != nil {
				return fmt.Errorf("naming user %s: %w", du.email, err)
			}
		}
		users = append(users, u)
	}
	owner := users[0]

	// Check if seed has already run.
	existing, err := a.teams.ListForUser(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("checking existing teams: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	desc := "Demo team created by taskhub seed"
	t, err := a.teams.Create(ctx, owner.ID, "Demo Team", &desc)
	if err != nil {
		return fmt.Errorf("creating demo team: %w", err)
	}
	for _, u := range users[1:] {
		if _, err := a.teams.Invite(ctx, t.ID, owner.ID, u.ID); err != nil {
			return fmt.Errorf("inviting %s: %w", u.Username, err)
		}
	}

	var first *teamtask.Task
	for _, title := range demoTasks {
		task, err := a.tasks.Create(ctx, t.ID, owner.ID, teamtask.CreateInput{Title: title})
		if err != nil {
			return fmt.Errorf("creating task %q: %w", title, err)
		}
		slog.Info("created team task", "title", task.Title, "id", task.ID)
		if first == nil {
			first = task
		}
	}

	// Everyone but the last member completes the first task.
	for _, u := range users[:len(users)-1] {
		if _, err := a.tasks.SetCompletion(ctx, t.ID, first.ID, u.ID, true); err != nil {
			return fmt.Errorf("completing task: %w", err)
		}
	}

	if _, err := a.todos.Create(ctx, owner.ID, todo.CreateInput{Title: "Try out taskhub"}); err != nil {
		return fmt.Errorf("creating todo: %w", err)
	}

	token, err := a.tokens.Issue(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Team:      %s (%s)\n", t.Name, t.ID)
	fmt.Printf("Members:   %d\n", len(users))
	fmt.Printf("Tasks:     %d\n", len(demoTasks))
	fmt.Printf("Token:     %s (%s)\n", token, owner.Username)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/teams/%s/tasks\n", token, t.ID)

	return nil
}
