package cli

import (
	"fmt"

	"resumereview/internal/common"
	"resumereview/internal/config"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [resume-file]",
	Short: "Upload a resume and print the feedback",
	Long: `Upload a resume to the analysis service and print the feedback it
returns: an overall score, summary, strengths, weaknesses, improvement
suggestions, bullet point rewrites and an ATS analysis.

With --export the PDF report for the feedback is downloaded and saved to the
configured destination (a local directory or an S3 bucket).

Status notifications are printed to stderr so stdout carries only the
formatted feedback.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		format, err := common.ResolveOutputFormat(analyzeConfig.OutputFormat, cfg.App.DefaultFormat, cfg.App.SupportedFormats)
		if err != nil {
			return err
		}
		analyzeConfig.OutputFormat = format
		return nil
	},
	RunE: runAnalyze,
}

var (
	analyzeConfig common.CommandConfig
	exportFlags   exportOverrides
	plainOutput   bool
)

// exportOverrides are per-run replacements for the export configuration
type exportOverrides struct {
	Directory string
	FileName  string
	Overwrite bool
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.OutputFormat, "format", "", "Output format: json, text, markdown or terminal")
	analyzeCmd.Flags().BoolVar(&analyzeConfig.Export, "export", false, "Download and save the PDF report after the analysis")
	analyzeCmd.Flags().StringVar(&exportFlags.Directory, "export-dir", "", "Directory for the exported report (overrides config)")
	analyzeCmd.Flags().StringVar(&exportFlags.FileName, "export-name", "", "File name for the exported report (overrides config)")
	analyzeCmd.Flags().BoolVar(&exportFlags.Overwrite, "overwrite", false, "Replace an existing report instead of numbering a new one")
	analyzeCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print notifications without colors")

	analyzeCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		cfg := getConfigFromContext(cmd.Context())
		return acceptExtensions(cfg.Intake.Accept), cobra.ShellCompDirectiveFilterFileExt
	}

	// Add completion for format flag
	_ = analyzeCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return cfg.App.SupportedFormats, cobra.ShellCompDirectiveNoFileComp
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := *getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	applyExportOverrides(cmd, &cfg)

	a, err := newApp(cmd.Context(), &cfg, logger, cmd.ErrOrStderr(), plainOutput)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Starting resume analysis",
		"file", args[0],
		"output_format", analyzeConfig.OutputFormat,
		"export", analyzeConfig.Export)

	handler := common.NewOutputHandlerWithWriter(logger, cmd.OutOrStdout())
	if err := common.RunAnalyzeCommand(cmd.Context(), logger, a.controller, analyzeConfig, args[0], handler); err != nil {
		return fmt.Errorf("failed to analyze resume: %w", err)
	}

	logger.Info("Resume analysis completed successfully")
	return nil
}

func applyExportOverrides(cmd *cobra.Command, cfg *config.Config) {
	if exportFlags.Directory != "" {
		cfg.Export.Destination = "local"
		cfg.Export.Directory = exportFlags.Directory
	}
	if exportFlags.FileName != "" {
		cfg.Export.FileName = exportFlags.FileName
	}
	if cmd.Flags().Changed("overwrite") {
		cfg.Export.Overwrite = exportFlags.Overwrite
	}
}
