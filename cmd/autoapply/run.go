package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/autoapply/internal/cycle"
)

var runCmd = &cobra.Command{
	Use:   "run <user_id>",
	Short: "Run one application cycle for a user, then exit",
	Long:  "Discovers, ranks and submits applications for one user within the configured quotas. Ctrl-C aborts the cycle.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycleCmd(args[0], cycle.ModeApply)
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover <user_id>",
	Short: "Rank jobs for a user without submitting",
	Long:  "Runs a discovery-only cycle and prints the ranked backlog. No quota is consumed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycleCmd(args[0], cycle.ModeDiscover)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
}

func runCycleCmd(userID string, mode cycle.Mode) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer svc.close(logger)
	defer svc.orch.Close()

	sum, err := svc.orch.RunManualCycle(ctx, userID, mode)
	if err != nil {
		return err
	}
	printSummary(sum)
	return nil
}

func printSummary(s cycle.Summary) {
	fmt.Printf("\nCycle %s (%s) for %s: %s", s.ID, s.Mode, s.UserID, s.State)
	if s.Reason != "" {
		fmt.Printf(" (%s)", s.Reason)
	}
	fmt.Printf("\n%s\n", strings.Repeat("─", 47))
	fmt.Printf("%-20s %d\n", "Discovered", s.Discovered)
	fmt.Printf("%-20s %d\n", "Unique", s.Unique)
	fmt.Printf("%-20s %d\n", "Scored", s.Scored)
	fmt.Printf("%-20s %d\n", "Eligible", s.Eligible)
	if s.Mode == cycle.ModeApply {
		fmt.Printf("%-20s %d\n", "Submitted", s.Submitted)
		fmt.Printf("%-20s %d\n", "Skipped", s.Skipped)
		fmt.Printf("%-20s %d\n", "Already applied", s.AlreadyApplied)
	}
	fmt.Printf("%-20s %d\n", "Source errors", s.SourceErrors)
	fmt.Printf("%-20s %s\n", "Duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))

	if len(s.Backlog) > 0 {
		fmt.Printf("\n%-6s %-40s %s\n", "Score", "Title", "Company")
		fmt.Println(strings.Repeat("─", 70))
		for _, j := range s.Backlog {
			fmt.Printf("%-6.2f %-40s %s\n", j.Score, truncate(j.Job.Title, 40), j.Job.Company)
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
