package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List all configured users",
	Long:  "Reads the config and prints a table of all configured users and their searches.",
	RunE:  runUsers,
}

func init() {
	rootCmd.AddCommand(usersCmd)
}

func runUsers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-20s %-15s %-8s %s\n", "User", "Location", "Skills", "Search queries")
	fmt.Println(strings.Repeat("─", 70))

	for _, u := range cfg.Users {
		location := u.Location
		if location == "" {
			location = cfg.Discovery.Location + "*"
		}
		fmt.Printf("%-20s %-15s %-8d %s\n", u.UserID, location, len(u.Profile.Skills), strings.Join(u.SearchQueries, ", "))
	}

	fmt.Printf("\nTotal: %d users, %d sources enabled (* = default location)\n", len(cfg.Users), cfg.Sources.EnabledCount())
	return nil
}
