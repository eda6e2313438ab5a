package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"instatrack/internal/retention"
	"instatrack/pkg/auth"
	"instatrack/pkg/config"
	"instatrack/pkg/cookies"
	"instatrack/pkg/database"
	"instatrack/pkg/dispatch"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
	"instatrack/pkg/privacy"
	"instatrack/pkg/scraper"
	"instatrack/pkg/stamps"
	"instatrack/pkg/storage"
)

var (
	// Sync command flags
	privacyFilter string
	withStories   bool
	withReels     bool
	withHighlight bool
	cleanDays     int
	downloadDir   string
	cookieFile    string
	rateLimitFlag int
	savedAccount  string
	useSaved      bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [usernames...]",
	Short: "Refresh tracked profiles and download their new content",
	Long: `Synchronize tracked profiles with their current remote state.

Without arguments, every tracked user is visited; with arguments, only the
named users are. Each visit refreshes the stored profile snapshot, records
public/private transitions, and downloads whatever content your account is
allowed to see. Private profiles you do not follow yield at most an updated
profile picture.

A user that cannot be fetched (deleted, renamed, or temporarily unavailable)
is skipped and reported at the end; only authentication failures abort the
whole run.`,
	Example: `  # Sync every tracked user
  instatrack sync

  # Sync only the public ones
  instatrack sync --privacy public

  # Sync two specific users with highlights
  instatrack sync alice bob --highlights

  # Skip the pre-sync cleanup
  instatrack sync --clean-days 0`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&privacyFilter, "privacy", "all", "which tracked users to visit (all, public, private)")
	syncCmd.Flags().BoolVar(&withStories, "stories", true, "download active stories")
	syncCmd.Flags().BoolVar(&withReels, "reels", true, "download reels")
	syncCmd.Flags().BoolVar(&withHighlight, "highlights", false, "download highlight reels")
	syncCmd.Flags().IntVar(&cleanDays, "clean-days", 15, "remove media older than this many days before syncing (0 disables)")
	syncCmd.Flags().StringVarP(&downloadDir, "download-dir", "o", "", "base directory for downloads")
	syncCmd.Flags().StringVar(&cookieFile, "cookie-file", "", "path to a Firefox cookies.sqlite (default: auto-discover)")
	syncCmd.Flags().IntVar(&rateLimitFlag, "requests-per-minute", 60, "request rate limit")
	syncCmd.Flags().StringVarP(&savedAccount, "account", "a", "", "authenticate with a saved account instead of Firefox")
	syncCmd.Flags().BoolVar(&useSaved, "use-saved", false, "authenticate with the default saved account")
}

func runSync(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if downloadDir != "" {
		flags["download-dir"] = downloadDir
	}
	if cookieFile != "" {
		flags["cookie-file"] = cookieFile
	}
	if rateLimitFlag != 60 {
		flags["requests-per-minute"] = rateLimitFlag
	}
	if cmd.Flags().Changed("highlights") {
		flags["highlights"] = withHighlight
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	filter, err := privacy.ParseFilter(privacyFilter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if cleanDays > 0 {
		preClean(ctx, cfg, log)
	}

	roster := make([]string, 0, len(args))
	for _, arg := range args {
		username := instagram.SanitizeUsername(arg)
		if !instagram.IsValidUsername(username) {
			return fmt.Errorf("invalid username: %q", arg)
		}
		roster = append(roster, username)
	}
	if len(roster) == 0 {
		roster, err = store.Usernames(ctx, filter)
		if err != nil {
			return err
		}
	}

	session, err := instagram.NewSession(cfg, log)
	if err != nil {
		return err
	}
	defer session.Close()

	identity, err := importSession(session, cfg, log)
	if err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s\n", identity)

	marks, err := stamps.Load(cfg.Download.StampsFile)
	if err != nil {
		return err
	}
	media, err := storage.NewManager(cfg.Download.BaseDirectory, log)
	if err != nil {
		return err
	}

	client := instagram.NewClient(session, log)
	dispatcher := dispatch.NewDispatcher(client, media, marks, dispatch.Options{
		Stories:    withStories,
		Reels:      withReels,
		Highlights: cfg.Download.Highlights,
	}, log)

	orchestrator, err := scraper.NewOrchestrator(client, dispatcher, store, marks, cfg.Download.TrackingDirectory, log)
	if err != nil {
		return err
	}

	summary, err := orchestrator.Run(ctx, roster)
	printSummary(summary)
	return err
}

// importSession authenticates the session via Firefox cookies, or via saved
// credentials when requested.
func importSession(session *instagram.Session, cfg *config.Config, log logger.Logger) (string, error) {
	if savedAccount != "" || useSaved {
		manager, err := auth.NewManager()
		if err != nil {
			return "", err
		}
		return auth.NewImporter(manager, savedAccount, log).Import(session)
	}
	return cookies.NewImporter(cfg.Instagram.CookieFile, log).Import(session)
}

// preClean runs the age sweep before syncing so fresh downloads land in a
// tree that already respects the retention window. Failures are logged, not fatal.
func preClean(ctx context.Context, cfg *config.Config, log logger.Logger) {
	manager, err := retention.NewManager(cfg.Download.BaseDirectory, retention.Config{
		Workers:            cfg.Retention.Workers,
		BatchSize:          cfg.Retention.BatchSize,
		LargeFileThreshold: cfg.Retention.LargeFileThreshold,
	}, log)
	if err != nil {
		log.WithError(err).Warn("Skipping pre-sync cleanup")
		return
	}

	summary, err := manager.RemoveOld(ctx, time.Duration(cleanDays)*24*time.Hour)
	if err != nil {
		log.WithError(err).Warn("Pre-sync cleanup interrupted")
		return
	}
	if summary.Removed > 0 {
		fmt.Printf("Cleanup removed %d files (%.1f MB)\n",
			summary.Removed, float64(summary.BytesFreed)/(1024*1024))
	}
}

func printSummary(summary *scraper.Summary) {
	if summary == nil {
		return
	}

	fmt.Printf("\nSync finished: %d synced, %d skipped, %d failed of %d users; %d files downloaded\n",
		summary.Synced, summary.Skipped, summary.Failed, summary.Total, summary.Downloaded)

	for _, change := range summary.Transitions {
		fmt.Printf("  privacy change: %s is now %s (was %s)\n", change.Username, change.To, change.From)
	}
	if len(summary.FailedUsers) > 0 {
		fmt.Printf("  could not sync: %v\n", summary.FailedUsers)
	}
}
