package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/pipeline"
)

var (
	runNiche    string
	runLocation string
	runType     string
	runLead     int64
)

var runCmd = &cobra.Command{
	Use:       "run <stage>",
	Short:     "Run one pipeline stage now",
	Long:      "Runs a single stage once and prints its report. Stages: " + strings.Join(pipeline.Stages, ", ") + ". With --niche and --location, discovery searches that target instead of the configured ones. With --lead, the stage runs for that one lead only.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: pipeline.Stages,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stage := strings.ToLower(strings.TrimSpace(args[0]))

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var rep *pipeline.StageReport
		switch {
		case runLead > 0:
			rep, err = env.Pipeline.RunLead(ctx, stage, runLead)
		case stage == pipeline.StageDiscovery && (runNiche != "" || runLocation != ""):
			rep, err = env.Pipeline.Discover(ctx, discovery.Request{
				Niche:        runNiche,
				Location:     runLocation,
				BusinessType: runType,
			})
		default:
			rep, err = env.Pipeline.Run(ctx, stage)
		}
		if err != nil {
			return eris.Wrapf(err, "run %s", stage)
		}
		return printReport(os.Stdout, rep)
	},
}

func printReport(w io.Writer, rep *pipeline.StageReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func init() {
	runCmd.Flags().StringVar(&runNiche, "niche", "", "discovery niche, e.g. bakery")
	runCmd.Flags().StringVar(&runLocation, "location", "", "discovery location, e.g. Pune")
	runCmd.Flags().StringVar(&runType, "type", "", "business type (defaults to the niche)")
	runCmd.Flags().Int64Var(&runLead, "lead", 0, "run the stage for this lead id only")
	rootCmd.AddCommand(runCmd)
}
