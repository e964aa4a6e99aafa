package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coffersTech/nanorule/internal/engine"
	"github.com/coffersTech/nanorule/internal/storage"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan <file>...",
	Short: "Analyze log files and print the issues found",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print reports as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	analyzer, _ := newAnalyzer(cfg, logger)
	opts := storage.ReadOptions{
		MaxBytes:  cfg.Analysis.MaxContentBytes,
		ChunkSize: cfg.Analysis.ChunkSize,
	}

	reports := make([]*engine.Report, 0, len(args))
	for _, path := range args {
		text, truncated, err := storage.ReadFile(path, opts)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if truncated {
			logger.Warn("file truncated", "file", path, "max_bytes", opts.MaxBytes)
		}

		report, err := analyzer.Analyze(cmd.Context(), path, text, rules)
		if err != nil {
			return err
		}
		report.Digest = storage.Digest(text)
		report.Truncated = truncated
		reports = append(reports, report)
	}

	out := cmd.OutOrStdout()
	if scanJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for _, r := range reports {
		printReport(out, r)
	}
	return nil
}

func printReport(w io.Writer, r *engine.Report) {
	fmt.Fprintf(w, "%s: %d issues (%d high, %d medium), %d lines\n",
		r.FileID, r.Summary.TotalIssues, r.Summary.HighSeverity, r.Summary.MediumSeverity, r.Stats.TotalLines)
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "  [%s] %s (%s) line %d: %s\n",
			issue.Severity, issue.RuleName, issue.RuleID, issue.LineNumber, issue.MatchedText)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}
