package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/autoapply/internal/history"
	"github.com/amishk599/autoapply/internal/model"
)

// historyLimit caps how many applications the browser loads.
const historyLimit = 500

var historyCmd = &cobra.Command{
	Use:   "history [user_id]",
	Short: "Browse application history interactively (TUI)",
	Long:  "Shows the user picker TUI (unless a user is given), then the application browser. Responses can be recorded from the detail view.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryCmd,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Any log output once the alt-screen starts corrupts the display.
	svc, err := buildServices(context.Background(), cfg, silentLogger())
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer svc.close(logger)
	defer svc.orch.Close()

	if len(args) == 1 {
		if _, err := cfg.User(args[0]); err != nil {
			return err
		}
		_, err := browseUser(svc.store, args[0])
		return err
	}

	if len(cfg.Users) == 0 {
		fmt.Println("No users in config.")
		return nil
	}

	for {
		users := svc.orch.AllUserStats(context.Background())
		choice, err := history.RunUserPicker(users)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return nil
		}
		if choice < 0 {
			return nil
		}

		wantQuit, err := browseUser(svc.store, users[choice].UserID)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		if wantQuit {
			return nil
		}
		// else: back to picker
	}
}

func browseUser(st model.ApplicationStore, userID string) (bool, error) {
	apps, err := history.RunLoader(userID, func(ctx context.Context) ([]model.Application, error) {
		return st.ListApplications(ctx, userID, historyLimit)
	})
	if err != nil {
		return false, fmt.Errorf("load applications: %w", err)
	}
	wantQuit, err := history.Run(userID, apps, st.UpdateApplicationStatus)
	if err != nil {
		return false, fmt.Errorf("history browser: %w", err)
	}
	return wantQuit, nil
}
