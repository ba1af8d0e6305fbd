package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/importer"
)

// watchOptions configures runWatch.
type watchOptions struct {
	Dir     string
	Pattern string // matched against the file name
	Mode    core.ImportMode
	Settle  time.Duration // quiet period before a changed file is imported

	// ready is closed once the directory is being watched.
	ready chan struct{}
}

func (a *app) watchCommand() *cobra.Command {
	var (
		pattern string
		mode    string
		settle  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Import exports as they are written to a directory",
		Long: `Watch a directory and import every export written to it once the file
has been quiet for the settle period. Imports append by default so each new
file extends the collection.

Examples:
  transitctl watch ./incoming
  transitctl watch ./incoming --pattern "*_weekly.csv" --settle 5s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := core.ParseImportMode(mode)
			if !ok {
				return fmt.Errorf("%w: %q", core.ErrInvalidMode, mode)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runWatch(ctx, watchOptions{Dir: args[0], Pattern: pattern, Mode: m, Settle: settle})
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "*.csv", "file name pattern to import")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(core.ImportAppend), "import mode: replace, append")
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "quiet period before importing a changed file")
	return cmd
}

func (a *app) runWatch(ctx context.Context, opts watchOptions) error {
	if !doublestar.ValidatePattern(opts.Pattern) {
		return fmt.Errorf("invalid pattern %q", opts.Pattern)
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return err
	}
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := importer.NewService(st, importer.Config{Parser: a.parser, Logger: a.log})
	ctx = importer.WithRequestMeta(ctx, importer.RequestMeta{Actor: "transitctl watch"})

	fmt.Fprintf(a.errOut, "watching %s for %s (%d records stored)\n", dir, opts.Pattern, st.Count())
	if opts.ready != nil {
		close(opts.ready)
	}

	ticker := time.NewTicker(opts.Settle / 4)
	defer ticker.Stop()

	// pending maps a path to the time of its last write.
	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if match, _ := doublestar.Match(opts.Pattern, filepath.Base(ev.Name)); !match {
				continue
			}
			pending[ev.Name] = time.Now()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("watcher error", "error", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < opts.Settle {
					continue
				}
				delete(pending, path)
				a.importWatched(ctx, svc, path, opts.Mode)
			}
		}
	}
}

// importWatched imports one settled file. Failures are reported and the
// watch goes on.
func (a *app) importWatched(ctx context.Context, svc *importer.Service, path string, mode core.ImportMode) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Removed or renamed before it settled.
		a.log.Debug("skip vanished file", "path", path, "error", err)
		return
	}

	summary, err := svc.Import(ctx, importer.Request{
		FileName:    filepath.Base(path),
		ContentType: "text/csv",
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
		Mode:        mode,
	})
	if err != nil {
		fmt.Fprintf(a.errOut, "%s: %s\n", path, formatError(err))
		return
	}
	fmt.Fprintln(a.out, renderSummary(summary))
}
