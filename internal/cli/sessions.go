package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/assay/internal/model"
	"github.com/ppiankov/assay/internal/report"
	"github.com/ppiankov/assay/internal/store"
)

var (
	showFormat string
	listLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Render an archived session",
	Long: `Show loads a finalized session from the archive and renders it.
A unique prefix of the session id is enough.

Example:
  assay show 01927c3e
  assay show 01927c3e --format json > session.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close() }()

		s, err := archive.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		r := report.NewRenderer(!noFooter)
		switch showFormat {
		case "md", "markdown":
			_, err = fmt.Fprint(cmd.OutOrStdout(), r.Markdown(s))
			return err
		case "json":
			return r.WriteJSON(cmd.OutOrStdout(), s)
		case "summary":
			report.WriteSummary(cmd.OutOrStdout(), s)
			return nil
		default:
			return fmt.Errorf("unknown format %q (supported: md, json, summary)", showFormat)
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close() }()

		summaries, err := archive.List(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No archived sessions")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tEMPIRICAL\tSOUNDNESS\tIDEA")
		for _, sum := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(sum.ID),
				sum.CreatedAt.Local().Format("2006-01-02 15:04"),
				summaryStatus(sum),
				sum.Buckets[model.DimensionEmpiricalSupport],
				sum.Buckets[model.DimensionTheoreticalSoundness],
				truncate(sum.Idea, 60))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)

	showCmd.Flags().StringVar(&showFormat, "format", "md", "output format: md, json, summary")
	showCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown output")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum sessions to list")
}

func openArchive() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Store.Path
	if path == "" {
		path = filepath.Join(defaultDataDir(), "sessions.db")
	}
	return store.Open(expandHome(path))
}

func summaryStatus(sum store.Summary) string {
	if sum.Incomplete {
		return "incomplete"
	}
	return "complete"
}

func shortID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
