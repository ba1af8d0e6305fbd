package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/importer"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

// readConcurrency bounds how many files are read at once.
const readConcurrency = 4

// inputFile is one import candidate read from disk.
type inputFile struct {
	Path string
	Data []byte
}

func (a *app) importCommand() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "import <file|glob>...",
		Short: "Import transit exports into the record store",
		Long: `Import one or more ';'-delimited transit exports. Patterns are expanded
with ** support. Files are read in parallel and applied in argument order,
sorted by name within a pattern: the first file uses --mode, later files are
appended to it.

Examples:
  transitctl import export.csv
  transitctl import "exports/**/*.csv" --mode append`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := core.ParseImportMode(mode)
			if !ok {
				return fmt.Errorf("%w: %q", core.ErrInvalidMode, mode)
			}
			return a.runImport(cmd.Context(), args, m)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(core.ImportReplace), "import mode: replace, append")
	return cmd
}

func (a *app) runImport(ctx context.Context, patterns []string, mode core.ImportMode) error {
	paths, err := expandPatterns(patterns)
	if err != nil {
		return err
	}
	files, err := readFiles(ctx, paths)
	if err != nil {
		return err
	}

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := importer.NewService(st, importer.Config{Parser: a.parser, Logger: a.log})
	ctx = importer.WithRequestMeta(ctx, importer.RequestMeta{Actor: "transitctl"})

	var summaries []*core.ImportSummary
	failed := 0
	for _, f := range files {
		summary, err := svc.Import(ctx, importer.Request{
			FileName:    filepath.Base(f.Path),
			ContentType: "text/csv",
			Size:        int64(len(f.Data)),
			Body:        bytes.NewReader(f.Data),
			Mode:        mode,
		})
		if err != nil {
			failed++
			fmt.Fprintf(a.errOut, "%s: %s\n", f.Path, formatError(err))
			continue
		}
		summaries = append(summaries, summary)
		// Later files extend what the first successful one stored.
		mode = core.ImportAppend
	}

	if err := a.printSummaries(summaries, st); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to import", failed, len(files))
	}
	return nil
}

// expandPatterns resolves each argument as a doublestar glob. A pattern that
// matches nothing is an error so typos are not silently ignored.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: no files match %q", core.ErrNoFile, pattern)
		}
		slices.Sort(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, nil
}

// readFiles reads paths concurrently, keeping their order.
func readFiles(ctx context.Context, paths []string) ([]inputFile, error) {
	files := make([]inputFile, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)

	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			files[i] = inputFile{Path: p, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (a *app) printSummaries(summaries []*core.ImportSummary, st *store.Store) error {
	if a.jsonOutput() {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	for _, s := range summaries {
		fmt.Fprintln(a.out, renderSummary(s))
	}
	fmt.Fprintf(a.out, "%s %d records stored (%s snapshot)\n",
		styleLabel.Render("store:"), st.Count(), st.LastSnapshotKind())
	return nil
}

func (a *app) previewCommand() *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show the header mapping and first rows of an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			text, err := core.ReadText(f, core.TextOptions{})
			if err != nil {
				return err
			}
			preview := core.BuildPreview(text, rows)

			if a.jsonOutput() {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(preview)
			}
			fmt.Fprintln(a.out, renderPreview(preview))
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 5, "number of data rows to show")
	return cmd
}
