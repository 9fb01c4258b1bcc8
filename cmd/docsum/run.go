package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docsum/internal/config"
	"github.com/dgallion1/docsum/internal/pipeline"
	"github.com/dgallion1/docsum/internal/report"
	"github.com/dgallion1/docsum/internal/usage"
)

// runOptions are the flags of the run command.
type runOptions struct {
	Input       string
	Mode        string
	Title       string
	Concurrency int
	OutMD       string
	OutJSONL    string
	OutHTML     string
	OutXLSX     string
	Verbose     bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Summarize every file matching --input",
	Long: `Summarize every file matching --input and write a Markdown report and a JSONL
file with one record per input. A file that fails is reported and skipped; the rest
of the batch continues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if runOpts.Verbose {
			level = slog.LevelDebug
		}
		log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		applyOverrides(&cfg, runOpts, cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}

		paths, err := collectInputs(runOpts.Input)
		if err != nil {
			return err
		}

		tracker := usage.NewAggregate(cfg.StatsWindow)
		w, eng, closeFn, err := newWorker(cmd.Context(), cfg, tracker, log)
		if err != nil {
			return err
		}
		defer closeFn()

		log.Info("summarizing", "files", len(paths), "concurrency", cfg.Concurrency)
		start := time.Now()
		outcomes := pipeline.RunBatch(cmd.Context(), w, paths, cfg.Concurrency)
		meta := report.BuildMeta(outcomes, eng.Model(), string(eng.Mode()), time.Since(start))

		if err := writeReports(runOpts, meta, outcomes); err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), meta, outcomes, tracker.Snapshot())
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.Input, "input", "i", "input/*.pdf", "Glob of input files")
	runCmd.Flags().StringVar(&runOpts.Mode, "mode", "", "Segmentation mode: auto, always, never (default from config)")
	runCmd.Flags().StringVar(&runOpts.Title, "title", report.DefaultTitle, "Report title")
	runCmd.Flags().IntVarP(&runOpts.Concurrency, "concurrency", "c", 0, "Documents summarized at once (default from config)")
	runCmd.Flags().StringVar(&runOpts.OutMD, "out-md", "output/summaries.md", "Markdown report path (empty to skip)")
	runCmd.Flags().StringVar(&runOpts.OutJSONL, "out-jsonl", "output/summaries.jsonl", "JSONL output path (empty to skip)")
	runCmd.Flags().StringVar(&runOpts.OutHTML, "out-html", "", "HTML report path")
	runCmd.Flags().StringVar(&runOpts.OutXLSX, "out-xlsx", "", "Excel workbook path")
	runCmd.Flags().BoolVarP(&runOpts.Verbose, "verbose", "v", false, "Log every model attempt")

	rootCmd.AddCommand(runCmd)
}

// applyOverrides lets explicitly set flags win over file and environment.
func applyOverrides(cfg *config.Config, opts runOptions, cmd *cobra.Command) {
	if cmd.Flags().Changed("mode") {
		cfg.Mode = opts.Mode
	}
	if cmd.Flags().Changed("concurrency") && opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
}

// collectInputs expands the glob into a sorted list of supported files.
func collectInputs(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad input pattern %q: %w", pattern, err)
	}
	var paths []string
	for _, m := range matches {
		if fi, err := os.Stat(m); err != nil || fi.IsDir() {
			continue
		}
		paths = append(paths, m)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files match %q", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// writeReports writes every output whose path is set. The HTML report is the
// Markdown report rendered.
func writeReports(opts runOptions, meta report.Meta, outcomes []pipeline.Outcome) error {
	var md bytes.Buffer
	if err := report.WriteMarkdown(&md, opts.Title, meta, outcomes); err != nil {
		return err
	}
	if err := writeFile(opts.OutMD, md.Bytes()); err != nil {
		return err
	}

	if opts.OutJSONL != "" {
		var jsonl bytes.Buffer
		if err := report.WriteJSONL(&jsonl, outcomes); err != nil {
			return err
		}
		if err := writeFile(opts.OutJSONL, jsonl.Bytes()); err != nil {
			return err
		}
	}

	if opts.OutHTML != "" {
		page, err := report.RenderHTML(opts.Title, md.Bytes())
		if err != nil {
			return err
		}
		if err := writeFile(opts.OutHTML, page); err != nil {
			return err
		}
	}

	if opts.OutXLSX != "" {
		book, err := report.WriteXLSX(meta, outcomes)
		if err != nil {
			return err
		}
		if err := writeFile(opts.OutXLSX, book); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
