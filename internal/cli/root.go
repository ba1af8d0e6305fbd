// Package cli implements transitctl, the command line client that imports
// and inspects transit exports against the same snapshot storage the server
// uses.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/logging"
	"github.com/JonMunkholm/transitwatch/internal/storage"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

// app carries the state shared by every command.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
	log    *slog.Logger

	// parser is nil in production; the importer then uses the default one.
	parser *core.Parser
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// NewRootCommand builds the transitctl command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(&app{v: viper.New(), out: out, errOut: errOut})
}

func newRootCommand(a *app) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "transitctl",
		Short: "transitctl imports and inspects railway transit exports",
		Long: `transitctl parses ';'-delimited transit operation exports, flags
anomalies, and keeps the records in the snapshot storage shared with the
transitwatch server.

Configuration is read from flags, STORAGE_* environment variables, a .env
file, and .transitctl.yaml in the working or home directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig(cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: .transitctl.yaml)")
	flags.String("storage", "file", "storage backend: memory, file, postgres, redis, sqlite")
	flags.String("dir", "./data", "directory of the file backend")
	flags.String("key", store.DefaultKey, "storage key of the snapshot")
	flags.StringP("output", "o", "text", "output format: text, json")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")

	for key, flag := range map[string]string{
		"storage.backend": "storage",
		"storage.dir":     "dir",
		"storage.key":     "key",
		"output":          "output",
		"log.level":       "log-level",
	} {
		// BindPFlag only fails for a nil flag.
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.importCommand(),
		a.previewCommand(),
		a.statsCommand(),
		a.exportCommand(),
		a.clearCommand(),
		a.queryCommand(),
		a.watchCommand(),
		a.infoCommand(),
	)
	return root
}

func (a *app) initConfig(cfgFile string) error {
	// A missing .env is fine; the server reads the same file.
	_ = godotenv.Load()

	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		a.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.SetConfigName(".transitctl")
		a.v.SetConfigType("yaml")
	}

	// storage.dir is read from STORAGE_DIR, matching the server.
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}

	a.log = logging.New(a.errOut, a.v.GetString("log.level"), "text")
	return nil
}

// openStore opens the configured backend and loads the persisted snapshot.
// The returned func closes the backend.
func (a *app) openStore(ctx context.Context) (*store.Store, func(), error) {
	backing, err := storage.Open(ctx, storage.Options{
		Kind:          storage.Kind(a.v.GetString("storage.backend")),
		Dir:           a.v.GetString("storage.dir"),
		DatabaseURL:   a.v.GetString("database_url"),
		RedisAddr:     a.v.GetString("redis_addr"),
		RedisPassword: a.v.GetString("redis_password"),
		RedisDB:       a.v.GetInt("redis_db"),
		SQLitePath:    a.v.GetString("sqlite_path"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", a.v.GetString("storage.backend"), err)
	}

	st := store.New(backing, store.Options{
		Key:    a.v.GetString("storage.key"),
		Logger: a.log,
	})
	st.Load(ctx)
	a.log.Debug("snapshot loaded", "records", st.Count(), "kind", st.LastSnapshotKind())

	return st, func() {
		if err := backing.Close(); err != nil {
			a.log.Warn("close storage", "error", err)
		}
	}, nil
}

func (a *app) jsonOutput() bool {
	return strings.EqualFold(a.v.GetString("output"), "json")
}

// formatError prefers the user-facing message of known errors.
func formatError(err error) string {
	if !core.IsUserFacing(err) {
		return "Error: " + err.Error()
	}
	return "Error: " + core.FormatUserError(err)
}
