package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/leadfile"
	"github.com/sells-group/prospect-cli/internal/lifecycle"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	leadsStatus   []string
	leadsNiche    string
	leadsLocation string
	leadsLimit    int
	leadsJSON     bool

	exportFormat string
	exportOut    string

	importNiche    string
	importLocation string
	importType     string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and manage leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := leadsFilter()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListLeads(cmd.Context(), f)
		if err != nil {
			return err
		}
		if leadsJSON {
			return writeJSONOut(cmd.OutOrStdout(), leads)
		}
		return printLeadTable(cmd.OutOrStdout(), leads)
	},
}

var leadsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a lead with its conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLeadID(args[0])
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lead, err := st.GetLead(cmd.Context(), id)
		if err != nil {
			return err
		}
		return writeJSONOut(cmd.OutOrStdout(), lead)
	},
}

var leadsResetCmd = &cobra.Command{
	Use:   "reset <id> <status>",
	Short: "Move a lead back to an earlier status",
	Long:  "Moves a lead back along the pipeline. Resetting to replied_yes or earlier clears its prototype so it is rebuilt.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLeadID(args[0])
		if err != nil {
			return err
		}
		to := model.Status(strings.TrimSpace(args[1]))
		if !to.Valid() {
			return apperr.Newf(apperr.KindValidation, "leads reset", "unknown status %q", args[1])
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lead, err := st.GetLead(cmd.Context(), id)
		if err != nil {
			return err
		}
		updated, err := lifecycle.Reset(cmd.Context(), st, lead, to)
		if err != nil {
			return err
		}
		zap.L().Info("lead reset", zap.Int64("lead_id", id), zap.String("from", string(lead.Status)), zap.String("to", string(updated.Status)))
		return writeJSONOut(cmd.OutOrStdout(), updated)
	},
}

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a lead and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLeadID(args[0])
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteLead(cmd.Context(), id); err != nil {
			return err
		}
		zap.L().Info("lead deleted", zap.Int64("lead_id", id))
		return nil
	},
}

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads to CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := leadfile.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		if format == leadfile.FormatXLSX && exportOut == "" {
			return eris.New("xlsx export needs --out")
		}
		f, err := leadsFilter()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListLeads(cmd.Context(), f)
		if err != nil {
			return err
		}

		if format == leadfile.FormatXLSX {
			err = leadfile.WriteXLSX(exportOut, leads)
		} else {
			err = exportCSV(cmd.OutOrStdout(), leads)
		}
		if err != nil {
			return err
		}
		zap.L().Info("export complete", zap.Int("leads", len(leads)), zap.String("format", string(format)))
		return nil
	},
}

var leadsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import businesses from a CSV or XLSX file",
	Long:  "Reads businesses from a spreadsheet (columns: name, website, phone, address, id) and creates new leads for the given niche and location. Rows matching an existing lead are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		candidates, err := leadfile.ReadCandidates(args[0])
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := pipeline.New(cfg, pipeline.Deps{
			Store:     st,
			Providers: []discovery.Provider{leadfile.NewProvider(candidates)},
		})
		rep, err := p.Discover(ctx, discovery.Request{
			Niche:        importNiche,
			Location:     importLocation,
			BusinessType: importType,
		})
		if err != nil {
			return eris.Wrap(err, "import leads")
		}
		return printReport(cmd.OutOrStdout(), rep)
	},
}

func exportCSV(stdout io.Writer, leads []model.Lead) error {
	if exportOut == "" {
		return leadfile.WriteCSV(stdout, leads)
	}
	f, err := os.Create(exportOut)
	if err != nil {
		return eris.Wrapf(err, "create %s", exportOut)
	}
	if err := leadfile.WriteCSV(f, leads); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func leadsFilter() (store.LeadFilter, error) {
	f := store.LeadFilter{Niche: leadsNiche, Location: leadsLocation, Limit: leadsLimit}
	for _, s := range leadsStatus {
		st := model.Status(strings.TrimSpace(s))
		if !st.Valid() {
			return f, apperr.Newf(apperr.KindValidation, "leads", "unknown status %q", s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	return f, nil
}

func parseLeadID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.KindValidation, "leads", "invalid lead id %q", s)
	}
	return id, nil
}

func printLeadTable(w io.Writer, leads []model.Lead) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBUSINESS\tEMAIL\tPHONE\tSTATUS\tREPLIES")
	for _, l := range leads {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n",
			l.ID, l.DisplayName(), model.Deref(l.Email), model.Deref(l.Phone), l.Status, l.ReplyCount)
	}
	return tw.Flush()
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{leadsListCmd, leadsExportCmd} {
		c.Flags().StringSliceVar(&leadsStatus, "status", nil, "filter by status (repeatable)")
		c.Flags().StringVar(&leadsNiche, "niche", "", "filter by niche")
		c.Flags().StringVar(&leadsLocation, "location", "", "filter by location")
		c.Flags().IntVar(&leadsLimit, "limit", 0, "maximum leads (default 500)")
	}
	leadsListCmd.Flags().BoolVar(&leadsJSON, "json", false, "print JSON instead of a table")

	leadsExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or xlsx")
	leadsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (csv defaults to stdout)")

	leadsImportCmd.Flags().StringVar(&importNiche, "niche", "", "niche for the imported leads (required)")
	leadsImportCmd.Flags().StringVar(&importLocation, "location", "", "location for the imported leads (required)")
	leadsImportCmd.Flags().StringVar(&importType, "type", "", "business type (defaults to the niche)")
	_ = leadsImportCmd.MarkFlagRequired("niche")
	_ = leadsImportCmd.MarkFlagRequired("location")

	leadsCmd.AddCommand(leadsListCmd, leadsGetCmd, leadsResetCmd, leadsDeleteCmd, leadsExportCmd, leadsImportCmd)
	rootCmd.AddCommand(leadsCmd)
}
