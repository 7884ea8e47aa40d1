package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wxrss/pkg/auth"
)

var (
	loginTimeout time.Duration
	loginQROnly  bool
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the WeChat Official Account platform by QR scan",
	Long: `Opens the platform login page in a headless browser, captures the QR
code and waits for you to scan it with the WeChat app. On success the
session (token + cookies) is persisted for later commands.`,
	Example: `  # Log in and persist the session
  wxrss login

  # Allow more time for the scan
  wxrss login --timeout 5m

  # Only export the QR code image without waiting
  wxrss login --qr-only`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the stored session still authenticates",
	Long: `Loads the persisted session and issues one lightweight authenticated
call. An expired session is marked as such; run 'wxrss login' to
replace it.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("Session removed.")
		return nil
	},
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginTimeout > 0 {
		cfg.Login.Timeout = loginTimeout
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	a := auth.New(cfg, store, nil, nil, nil)
	a.OnQRCode = displayQRCode

	if loginQROnly {
		path, err := a.ExportQRCode(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("QR code exported to:", path)
		return nil
	}

	sess, err := a.Login(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Logged in. Session persisted with %d cookies.\n", len(sess.Cookies))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	sess, err := loadSession(store)
	if err != nil {
		return err
	}

	client, g := newEngine(sess)
	a := auth.New(cfg, store, g, client, nil)

	fmt.Printf("Session created: %s\n", sess.CreatedAt.Format(time.RFC3339))
	if err := a.EnsureValid(cmd.Context(), sess); err != nil {
		return err
	}

	fmt.Println("Session is valid.")
	return nil
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 0, "how long to wait for the scan (default from config)")
	loginCmd.Flags().BoolVar(&loginQROnly, "qr-only", false, "export the QR code image and exit")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
}
