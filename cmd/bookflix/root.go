package main

import (
	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "bookflix",
	Short: "Personal book library with AI-powered insights and retrieval",
	Long: `Bookflix turns a directory of PDFs and EPUBs into a searchable,
conversational personal library.

The processing pipeline includes:
  - Text extraction and structure-aware chunking
  - Embeddings for hybrid full-text + vector search
  - LLM-generated insights with iterative refinement
  - Metadata enrichment and cover extraction
  - A discovery feed, topic clusters, and recommendations`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.bookflix/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "bookflix home directory (default: ~/.bookflix)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
