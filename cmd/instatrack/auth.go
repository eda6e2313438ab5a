package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"instatrack/pkg/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage saved session credentials",
	Long: `Manage saved session credentials for the fallback login path.

The normal login path imports the session of a local Firefox profile and
needs no setup. Saved credentials cover headless machines: the sessionid and
csrftoken cookie values are stored in the system keychain when available,
otherwise in an encrypted file.

Never share your credentials or config files.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Save session credentials",
	Long: `Save session credentials for later syncs.

You will be prompted for the sessionid and csrftoken cookie values. To find
them: log in with your browser, open the developer tools, and copy both
values from the site's cookies.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthLogin,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved accounts",
	RunE:  runAuthList,
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove a saved account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthRemove,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authRemoveCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Print("Username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		username = strings.TrimSpace(input)
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	fmt.Print("sessionid cookie value: ")
	sessionID, err := readSecret(reader)
	if err != nil {
		return err
	}

	fmt.Print("csrftoken cookie value: ")
	csrfToken, err := readSecret(reader)
	if err != nil {
		return err
	}

	if err := manager.Store(&auth.Account{
		Username:  username,
		SessionID: sessionID,
		CSRFToken: csrfToken,
	}); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Printf("Credentials saved for %s\n", username)
	fmt.Printf("Use them with: instatrack sync --account %s\n", username)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("No saved accounts. Use 'instatrack auth login' to add one.")
		return nil
	}

	for _, account := range accounts {
		fmt.Printf("%s\n", account.Username)
		fmt.Printf("  session id: %s\n", auth.MaskSecret(account.SessionID))
		fmt.Printf("  csrf token: %s\n", auth.MaskSecret(account.CSRFToken))
		fmt.Printf("  saved:      %s\n", account.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed saved account %s\n", args[0])
	return nil
}

// readSecret reads a value without echoing when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(secret), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
