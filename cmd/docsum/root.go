package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docsum",
	Short: "Map-reduce summaries of long research documents",
	Long: `docsum turns long documents (PDF, DOCX, HTML, Markdown, text) into structured
summaries with page anchors. Documents too long for one model call are split into
overlapping chunks, summarized per chunk, and reduced into a single summary.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("DOCSUM_CONFIG"), "YAML configuration file (environment variables override it)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context; documents stop between chunks.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
