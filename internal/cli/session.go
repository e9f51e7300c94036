package cli

import (
	"resumereview/internal/common"
	"resumereview/internal/intake"
	"resumereview/internal/session"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start an interactive review session",
	Long: `Start an interactive session for selecting a resume, running the
analysis, reviewing the feedback and exporting the PDF report.

With --drop-dir the session watches a folder: files copied or moved into it
are treated as a drag and drop, and the first file of each batch becomes the
selection. Type "help" inside the session for the list of commands.

Set app.logFile to keep log lines out of the session output.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		format, err := common.ResolveOutputFormat(sessionFormat, cfg.App.DefaultFormat, cfg.App.SupportedFormats)
		if err != nil {
			return err
		}
		sessionFormat = format
		return nil
	},
	RunE: runSession,
}

var (
	sessionFormat string
	dropDir       string
)

func init() {
	sessionCmd.Flags().StringVar(&sessionFormat, "format", "", "Format used to show feedback: json, text, markdown or terminal")
	sessionCmd.Flags().StringVar(&dropDir, "drop-dir", "", "Folder to watch for dropped resume files")
	sessionCmd.Flags().StringVar(&exportFlags.Directory, "export-dir", "", "Directory for exported reports (overrides config)")
	sessionCmd.Flags().StringVar(&exportFlags.FileName, "export-name", "", "File name for exported reports (overrides config)")
	sessionCmd.Flags().BoolVar(&exportFlags.Overwrite, "overwrite", false, "Replace an existing report instead of numbering a new one")
	sessionCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print notifications without colors")

	_ = sessionCmd.MarkFlagDirname("drop-dir")
	_ = sessionCmd.MarkFlagDirname("export-dir")
	_ = sessionCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return cfg.App.SupportedFormats, cobra.ShellCompDirectiveNoFileComp
	})
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg := *getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	applyExportOverrides(cmd, &cfg)

	a, err := newApp(cmd.Context(), &cfg, logger, cmd.OutOrStdout(), plainOutput)
	if err != nil {
		return err
	}
	defer a.Close()

	var watcher *intake.DropWatcher
	if dropDir != "" {
		watcher, err = intake.NewDropWatcher(dropDir, cfg.Intake.DropDebounce, logger)
		if err != nil {
			return err
		}
	}

	logger.Info("Starting review session", "format", sessionFormat, "drop_dir", dropDir)

	s := session.New(a.controller, cmd.InOrStdin(), cmd.OutOrStdout(), session.Options{
		Format:  sessionFormat,
		Watcher: watcher,
		Logger:  logger,
	})
	return s.Run(cmd.Context())
}
