package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"credkeeper/internal/config"
	"credkeeper/internal/lifecycle"
	"credkeeper/internal/logging"
	"credkeeper/internal/orchestrator"
	"credkeeper/internal/store"
	"credkeeper/internal/usage"
)

var (
	// Global flags
	verbose    bool
	configPath string
	stateDir   string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "credkeeper",
	Short: "credkeeper - browser-assisted session credential manager",
	Long: `credkeeper obtains and manages session credentials for the code
assistant service across multiple accounts.

It drives a real browser through the login flow (verification codes and
challenge checkpoints stay in the operator's hands), stores one credential
per account, watches credential age against a fixed TTL, and falls back to
a local extraction page when automation cannot reach the cookies.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		initCategorizedLogging(loadConfig())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// loadConfig resolves the effective configuration for this invocation.
func loadConfig() *config.UserConfig {
	path := configPath
	if path == "" {
		path = config.DefaultUserConfigPath()
	}
	return config.LoadOrDefault(path)
}

func resolveStateDir() string {
	if stateDir != "" {
		return stateDir
	}
	return config.DefaultStateDir()
}

// initCategorizedLogging enables the file-based debug logs when the
// logging section of the user config asks for them. Failure is not
// fatal; the CLI works without its debug logs.
func initCategorizedLogging(cfg *config.UserConfig) {
	var s logging.Settings
	if cfg.Logging != nil {
		s = logging.Settings{
			DebugMode:  cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		}
	}
	if err := logging.InitializeWithSettings(resolveStateDir(), s); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug logging unavailable: %v\n", err)
	}
}

// buildOrchestrator wires the full subsystem. Legacy single-credential
// migration runs here, before anything else reads the store.
func buildOrchestrator(cfg *config.UserConfig) (*orchestrator.Orchestrator, error) {
	dir := resolveStateDir()

	accounts, err := store.NewAccountManager(dir)
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}

	if err := migrateLegacyCredential(accounts, dir); err != nil {
		return nil, err
	}

	records, err := lifecycle.NewRecordStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open expiry records: %w", err)
	}

	boundary, err := usage.NewBoundary(dir, usageEndpoint(cfg))
	if err != nil {
		return nil, fmt.Errorf("open usage boundary: %w", err)
	}

	return orchestrator.New(cfg, accounts, records, boundary), nil
}

// migrateLegacyCredential wraps a pre-multi-account credential file into
// a proper account. Idempotent; the file is removed after a successful
// migration so this runs at most once per machine.
func migrateLegacyCredential(accounts *store.AccountManager, dir string) error {
	legacyPath := filepath.Join(dir, "credential")
	raw, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read legacy credential: %w", err)
	}

	credential := strings.TrimSpace(string(raw))
	if credential == "" {
		return os.Remove(legacyPath)
	}

	if _, err := accounts.MigrateLegacySingleCredential(credential); err != nil {
		return fmt.Errorf("migrate legacy credential: %w", err)
	}
	return os.Remove(legacyPath)
}

// usageEndpoint derives the usage endpoint from the identity endpoint's
// origin so a config pointing at a staging host keeps both consistent.
func usageEndpoint(cfg *config.UserConfig) string {
	identity := cfg.Extract.IdentityEndpoint
	idx := strings.Index(identity, "/api/")
	if idx < 0 {
		return ""
	}
	return identity[:idx] + "/api/usage"
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, giving
// every in-flight flow a clean cooperative cancellation path.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\ninterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.credkeeper/config.json)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "State directory (default: ~/.credkeeper)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(monitorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
