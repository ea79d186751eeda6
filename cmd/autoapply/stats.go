package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/autoapply/internal/model"
)

var statsCmd = &cobra.Command{
	Use:   "stats [user_id]",
	Short: "Print application statistics",
	Long:  "Prints today's applications, all-time totals and response rate for one user, or for every configured user.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, err := buildServices(ctx, cfg, silentLogger())
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer svc.close(logger)
	defer svc.orch.Close()

	var rows []model.UserStats
	if len(args) == 1 {
		s, err := svc.orch.UserStats(ctx, args[0])
		if err != nil {
			return err
		}
		rows = append(rows, s)
	} else {
		rows = svc.orch.AllUserStats(ctx)
	}

	fmt.Printf("%-20s %-12s %-8s %-10s %s\n", "User", "Today", "Total", "Responses", "Hourly limit")
	fmt.Println(strings.Repeat("─", 66))
	for _, s := range rows {
		fmt.Printf("%-20s %-12s %-8d %-10s %d\n",
			s.UserID,
			fmt.Sprintf("%d/%d", s.ApplicationsToday, s.DailyLimit),
			s.TotalApplications,
			fmt.Sprintf("%.2f%%", s.ResponseRate),
			s.HourlyLimit,
		)
	}
	return nil
}
