package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show anomaly counts per probability level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			stats := st.AnomalyStats()
			if a.jsonOutput() {
				return a.writeJSON(stats)
			}
			fmt.Fprintln(a.out, renderStats(stats))
			return nil
		},
	}
}

func (a *app) exportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored records as ';'-delimited CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			csv := st.ExportCSV()
			if output == "" || output == "-" {
				_, err := fmt.Fprint(a.out, csv)
				return err
			}
			if err := os.WriteFile(output, []byte(csv), 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(a.errOut, "exported %d records to %s\n", st.Count(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "file", "f", "", "output file (default: stdout)")
	return cmd
}

func (a *app) clearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every record and the persisted snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			st, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			n := st.Count()
			st.Clear(cmd.Context())
			fmt.Fprintf(a.out, "cleared %d records\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm removal")
	return cmd
}

// queryFlags mirror the /api/records query parameters.
type queryFlags struct {
	probability []string
	risk        []string
	anomaly     []string
	onlyAnom    bool
	highOnly    bool
	recentOnly  bool
	search      string
	sort        string
	order       string
	page        int
	pageSize    int
}

func (f queryFlags) params() (core.QueryParams, error) {
	var q core.QueryParams
	for _, v := range f.probability {
		p := core.AnomalyProbability(v)
		if !p.Valid() {
			return q, fmt.Errorf("%w: probability=%q", core.ErrBadParameter, v)
		}
		q.Filter.Probability = append(q.Filter.Probability, p)
	}
	for _, v := range f.risk {
		l := core.RiskLevel(v)
		if !l.Valid() {
			return q, fmt.Errorf("%w: risk=%q", core.ErrBadParameter, v)
		}
		q.Filter.Risk = append(q.Filter.Risk, l)
	}
	for _, v := range f.anomaly {
		if v != core.NoAnomalies && !core.AnomalyType(v).Valid() {
			return q, fmt.Errorf("%w: anomaly=%q", core.ErrBadParameter, v)
		}
		q.Filter.Anomaly = append(q.Filter.Anomaly, v)
	}
	q.Filter.Quick = core.QuickFilters{
		OnlyAnomalies:       f.onlyAnom,
		HighProbabilityOnly: f.highOnly,
		RecentOnly:          f.recentOnly,
	}
	q.Search = f.search

	if f.sort != "" {
		dir := core.ParseSortDirection(f.order)
		if dir == core.SortNone {
			return q, fmt.Errorf("%w: order=%q", core.ErrBadParameter, f.order)
		}
		q.Sort = core.SortState{Column: f.sort, Direction: dir}
	}
	q.Page = f.page
	q.PageSize = f.pageSize
	return q, nil
}

func (a *app) queryCommand() *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Filter, search, sort, and page the stored records",
		Long: `Query the stored records the way the dashboard table does. Filter groups
combine with AND; values within a group combine with OR.

Examples:
  transitctl query --risk high,critical --sort total_weight --order desc
  transitctl query --anomaly no_anomalies -q "ст. Чукурсай" -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := f.params()
			if err != nil {
				return err
			}
			st, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			res := core.Query(st.GetAll(), params)
			if a.jsonOutput() {
				return a.writeJSON(res)
			}
			fmt.Fprintln(a.out, renderRecords(res))
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVar(&f.probability, "probability", nil, "probability levels: high, elevated, medium, low")
	fl.StringSliceVar(&f.risk, "risk", nil, "risk levels: minimal, low, medium, high, critical")
	fl.StringSliceVar(&f.anomaly, "anomaly", nil, "anomaly types: weight, time, route, duplicate, no_anomalies")
	fl.BoolVar(&f.onlyAnom, "only-anomalies", false, "only records with at least one anomaly")
	fl.BoolVar(&f.highOnly, "high-probability-only", false, "only high probability records")
	fl.BoolVar(&f.recentOnly, "recent-only", false, "only records transmitted in the last 7 days")
	fl.StringVarP(&f.search, "search", "q", "", "free-text search")
	fl.StringVar(&f.sort, "sort", "", "column to sort by")
	fl.StringVar(&f.order, "order", "asc", "sort direction: asc, desc")
	fl.IntVar(&f.page, "page", 1, "page number")
	fl.IntVar(&f.pageSize, "page-size", 20, "records per page")
	return cmd
}

// infoReport is the output of the info command.
type infoReport struct {
	Storage    store.StorageInfo  `json:"storage"`
	LastImport *store.ImportInfo  `json:"lastImport,omitempty"`
	Records    int                `json:"records"`
	Kind       store.SnapshotKind `json:"snapshotKind"`
	Backend    string             `json:"backend"`
	Key        string             `json:"key"`
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show snapshot size, budget usage, and the last import",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			report := infoReport{
				Storage: st.StorageInfo(ctx),
				Records: st.Count(),
				Kind:    st.LastSnapshotKind(),
				Backend: a.v.GetString("storage.backend"),
				Key:     a.v.GetString("storage.key"),
			}
			if info, ok := st.LastImportInfo(ctx); ok {
				report.LastImport = &info
			}

			if a.jsonOutput() {
				return a.writeJSON(report)
			}
			fmt.Fprintln(a.out, renderInfo(report))
			return nil
		},
	}
}
