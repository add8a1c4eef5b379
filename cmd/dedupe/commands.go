package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dedupe/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Filter, label, cluster and summarize in one pass",
	Long: `Run the whole pipeline: apply the filter profile, start a labeling session,
fit the classifier on all stored judgments, cluster the records and write the
clustered table (and its summary when output.summary is set).

If the judgments do not yet contain both a match and a distinct pair, the
labels are saved and clustering is skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		svc, err := a.newService(cmd.Context(), true)
		defer a.close()
		if err != nil {
			return err
		}
		report, err := svc.Run(cmd.Context())
		printLabel(report)
		if err != nil {
			return err
		}
		yellow := color.New(color.FgYellow).SprintFunc()
		if report.Skipped {
			fmt.Printf("%s Not enough judgments to cluster yet; label at least one match and one distinct pair\n", yellow("!"))
			return nil
		}
		printClusters(report.Clusters, report.Output)
		if report.Summary != "" {
			fmt.Printf("  Summary: %s\n", report.Summary)
		}
		return nil
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Apply the configured filter profile and write the kept rows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		svc, err := a.newService(cmd.Context(), false)
		defer a.close()
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = a.cfg.FilteredPath()
		}
		report, err := svc.FilterFile(out)
		if err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Kept %d of %d rows: %s\n", green("✓"), report.Kept, report.Input, out)
		for _, rule := range report.Rules() {
			fmt.Printf("  %-40s dropped %d\n", rule, report.Dropped[rule])
		}
		return nil
	},
}

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Run a labeling session and save the judgments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		svc, err := a.newService(cmd.Context(), true)
		defer a.close()
		if err != nil {
			return err
		}
		ds, _, err := svc.Load()
		if err != nil {
			return err
		}
		res, err := svc.Label(cmd.Context(), ds)
		printLabel(service.Report{Label: res})
		return err
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster with the stored judgments, without asking questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		svc, err := a.newService(cmd.Context(), false)
		defer a.close()
		if err != nil {
			return err
		}
		ds, _, err := svc.Load()
		if err != nil {
			return err
		}
		res, err := svc.Cluster(cmd.Context(), ds)
		if err != nil {
			return err
		}
		printClusters(len(res.Clusters), a.cfg.OutputPath())
		if a.cfg.Output.Summary {
			_, path, err := svc.Summarize(res.Table, a.cfg.OutputPath())
			if err != nil {
				return err
			}
			fmt.Printf("  Summary: %s\n", path)
		}
		return nil
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [clustered-file]",
	Short: "Aggregate a clustered table into one row per cluster",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		svc, err := a.newService(cmd.Context(), false)
		defer a.close()
		if err != nil {
			return err
		}
		path := a.cfg.OutputPath()
		if len(args) == 1 {
			path = args[0]
		}
		summaries, out, err := svc.SummarizeFile(path)
		if err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Summarized %d clusters: %s\n", green("✓"), len(summaries), out)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, filterCmd, labelCmd, clusterCmd, summarizeCmd} {
		c.Flags().String("input", "", "Input CSV or TSV file (overrides dataset.input)")
		rootCmd.AddCommand(c)
	}
	runCmd.Flags().Float64("threshold", 0.5, "Cluster threshold in (0,1) (overrides cluster.threshold)")
	clusterCmd.Flags().Float64("threshold", 0.5, "Cluster threshold in (0,1) (overrides cluster.threshold)")
	filterCmd.Flags().String("output", "", "Where to write the filtered rows (default <input>_filtered.csv)")
}

func printLabel(report service.Report) {
	res := report.Label
	if res.Session == "" {
		return
	}
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("%s Labeling %s: %d new judgments, %d total (%s)\n",
		cyan("•"), res.Session[:8], res.Added, res.Total, res.Reason)
}

func printClusters(n int, output string) {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Found %d clusters: %s\n", green("✓"), n, output)
}
