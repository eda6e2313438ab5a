package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"instatrack/pkg/database"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
	"instatrack/pkg/privacy"
)

var listFilter string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the tracked user roster",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked users",
	Example: `  # All tracked users
  instatrack users list

  # Only the private ones
  instatrack users list --privacy private`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *database.Store) error {
			filter, err := privacy.ParseFilter(listFilter)
			if err != nil {
				return err
			}

			profiles, err := store.ListProfiles(ctx, filter)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Println("No tracked users.")
				return nil
			}

			for _, profile := range profiles {
				visibility := "public"
				if profile.IsPrivate {
					visibility = "private"
				}
				fmt.Printf("%-30s %-8s %8d followers  %6d posts\n",
					profile.Username, visibility, profile.Followers, profile.MediaCount)
			}
			return nil
		})
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add <username>...",
	Short: "Start tracking one or more users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *database.Store) error {
			for _, arg := range args {
				username := instagram.SanitizeUsername(arg)
				if !instagram.IsValidUsername(username) {
					return fmt.Errorf("invalid username: %q", arg)
				}

				added, err := store.AddUser(ctx, username)
				if err != nil {
					return err
				}
				if added {
					fmt.Printf("Now tracking %s\n", username)
				} else {
					fmt.Printf("%s is already tracked\n", username)
				}
			}
			return nil
		})
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove <username>...",
	Short: "Stop tracking one or more users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *database.Store) error {
			for _, arg := range args {
				username := instagram.SanitizeUsername(arg)
				if err := store.RemoveUser(ctx, username); err != nil {
					return err
				}
				fmt.Printf("Stopped tracking %s\n", username)
			}
			return nil
		})
	},
}

var usersSetPrivacyCmd = &cobra.Command{
	Use:   "set-privacy <username> <public|private>",
	Short: "Override a user's stored privacy state",
	Long: `Override a user's stored privacy state.

The next sync replaces the override with the remotely observed state; this
exists for correcting the roster between runs.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *database.Store) error {
			username := instagram.SanitizeUsername(args[0])

			var isPrivate bool
			switch args[1] {
			case "private":
				isPrivate = true
			case "public":
				isPrivate = false
			default:
				return fmt.Errorf("privacy must be public or private, got %q", args[1])
			}

			if err := store.SetPrivacy(ctx, username, isPrivate); err != nil {
				return err
			}
			fmt.Printf("%s marked %s\n", username, args[1])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersRemoveCmd)
	usersCmd.AddCommand(usersSetPrivacyCmd)

	usersListCmd.Flags().StringVar(&listFilter, "privacy", "all", "filter by privacy state (all, public, private)")
}

// withStore loads configuration, opens the profile store, and runs fn
func withStore(fn func(context.Context, *database.Store) error) error {
	cfg, err := loadConfig(make(map[string]interface{}))
	if err != nil {
		return err
	}

	store, err := database.Open(cfg.Database.Path, logger.GetLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(context.Background(), store)
}
