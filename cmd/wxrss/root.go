package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"wxrss/pkg/auth"
	"wxrss/pkg/config"
	"wxrss/pkg/errors"
	"wxrss/pkg/gate"
	"wxrss/pkg/logger"
	"wxrss/pkg/session"
	"wxrss/pkg/wechat"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	logLevel   string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wxrss",
	Short: "Fetch WeChat Official Account articles as JSON feeds",
	Long: `wxrss logs into the WeChat Official Account platform via QR scan,
searches publishers, fetches their recent articles and projects them
into JSON feed files.

A login session is persisted locally (plain file, system keychain or
encrypted file) and reused until the platform rejects it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		return logger.Initialize(&cfg.Logging)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.IsKind(err, errors.KindTokenExpired) {
			fmt.Fprintln(os.Stderr, "Run 'wxrss login' to authenticate again.")
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .wxrss.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`wxrss {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// openStore builds the configured session store.
func openStore() (session.Store, error) {
	return session.OpenStore(cfg.Session.Backend, cfg.Session.File)
}

// loadSession loads the persisted session or tells the operator to log in.
func loadSession(store session.Store) (*session.Session, error) {
	sess, err := store.Load()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("no session found, run 'wxrss login' first")
	}
	return sess, nil
}

// newEngine wires the platform client and its request gate for a session.
func newEngine(sess *session.Session) (*wechat.Client, *gate.Gate) {
	log := logger.GetLogger()
	client := wechat.NewClient(sess, cfg.Browser.Timeout, log)
	g := gate.New(cfg.RateLimit, log)
	return client, g
}

// validSession loads the persisted session, validates it against the platform
// and wires the engine for it. Every authenticated command goes through here,
// so a session the platform rejects is marked expired and persisted before
// the error surfaces.
func validSession(ctx context.Context) (*session.Session, *wechat.Client, *gate.Gate, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, nil, err
	}
	sess, err := loadSession(store)
	if err != nil {
		return nil, nil, nil, err
	}

	client, g := newEngine(sess)
	a := auth.New(cfg, store, g, client, nil)
	if err := a.EnsureValid(ctx, sess); err != nil {
		return nil, nil, nil, err
	}
	return sess, client, g, nil
}
