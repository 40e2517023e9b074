package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

func createCommands() []*cli.Command {
	return []*cli.Command{
		createStatusCommand(),
		createQuotaCommand(),
		createBreakerCommand(),
		createPoolCommand(),
	}
}

func clientFrom(cmd *cli.Command) *adminClient {
	return newAdminClient(cmd.String("addr"), cmd.Duration("timeout"))
}

func createStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "check whether the daemon's admin surface is reachable",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdStatus(ctx, clientFrom(cmd))
		},
	}
}

func cmdStatus(ctx context.Context, c *adminClient) error {
	if err := c.get(ctx, "/healthz", nil); err != nil {
		fmt.Println("status: offline")
		fmt.Printf("detail: %v\n", err)
		return &exitError{code: 1}
	}
	fmt.Println("status: online")
	return nil
}

func createQuotaCommand() *cli.Command {
	return &cli.Command{
		Name:  "quota",
		Usage: "inspect the quota/license gate",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "show a session's quota and license state",
				ArgsUsage: "<session-token>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					args := cmd.Args().Slice()
					if len(args) == 0 {
						return &usageError{msg: "quota show requires a session token"}
					}
					return cmdQuotaShow(ctx, clientFrom(cmd), args[0])
				},
			},
		},
	}
}

// licenseStateView mirrors xlate.LicenseState's wire shape (no json
// tags on the server side, so field names must match exactly).
type licenseStateView struct {
	Plan      string
	ExpiresAt time.Time
	Monthly   struct {
		YearMonth   string
		TokensUsed  int
		TokensLimit int
	}
	Bonuses []struct {
		ID        string
		Source    string
		Granted   int
		Used      int
		ExpiresAt *time.Time
	}
	Promotion *struct {
		Code      string
		Plan      string
		AppliedAt time.Time
		ExpiresAt time.Time
	}
	LastServerSync time.Time
}

func cmdQuotaShow(ctx context.Context, c *adminClient, session string) error {
	var view licenseStateView
	if err := c.get(ctx, "/quota/"+session, &view); err != nil {
		return err
	}
	fmt.Printf("plan:             %s\n", view.Plan)
	fmt.Printf("expires at:       %s\n", view.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("monthly usage:    %d/%d (%s)\n", view.Monthly.TokensUsed, view.Monthly.TokensLimit, view.Monthly.YearMonth)
	fmt.Printf("bonus grants:     %d\n", len(view.Bonuses))
	if view.Promotion != nil {
		fmt.Printf("promotion:        %s (expires %s)\n", view.Promotion.Code, view.Promotion.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("last server sync: %s\n", view.LastServerSync.Format(time.RFC3339))
	return nil
}

func createBreakerCommand() *cli.Command {
	return &cli.Command{
		Name:  "breaker",
		Usage: "inspect the subprocess backend's circuit breaker",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "show the breaker's current state and counts",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return cmdBreakerStatus(ctx, clientFrom(cmd))
				},
			},
		},
	}
}

// breakerStatusView mirrors cmd/translated's breakerStatus wire shape.
type breakerStatusView struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Counts struct {
		Requests             uint32
		TotalSuccesses       uint32
		TotalFailures        uint32
		ConsecutiveSuccesses uint32
		ConsecutiveFailures  uint32
	} `json:"counts"`
}

func cmdBreakerStatus(ctx context.Context, c *adminClient) error {
	var view breakerStatusView
	if err := c.get(ctx, "/breaker/status", &view); err != nil {
		return err
	}
	fmt.Printf("breaker:      %s\n", view.Name)
	fmt.Printf("state:        %s\n", view.State)
	fmt.Printf("requests:     %d\n", view.Counts.Requests)
	fmt.Printf("successes:    %d (consecutive %d)\n", view.Counts.TotalSuccesses, view.Counts.ConsecutiveSuccesses)
	fmt.Printf("failures:     %d (consecutive %d)\n", view.Counts.TotalFailures, view.Counts.ConsecutiveFailures)
	return nil
}

func createPoolCommand() *cli.Command {
	return &cli.Command{
		Name:  "pool",
		Usage: "inspect the subprocess connection pool",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "show active/idle/waiting connection counts",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return cmdPoolStats(ctx, clientFrom(cmd))
				},
			},
		},
	}
}

// poolStatsView mirrors subprocconn.Stats's wire shape.
type poolStatsView struct {
	Active  int
	Idle    int
	Total   int
	Waiting int
}

func cmdPoolStats(ctx context.Context, c *adminClient) error {
	var view poolStatsView
	if err := c.get(ctx, "/pool/stats", &view); err != nil {
		return err
	}
	fmt.Printf("active:  %d\n", view.Active)
	fmt.Printf("idle:    %d\n", view.Idle)
	fmt.Printf("total:   %d\n", view.Total)
	fmt.Printf("waiting: %d\n", view.Waiting)
	return nil
}
