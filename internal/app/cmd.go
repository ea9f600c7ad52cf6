package app

import (
	"io"

	"github.com/spf13/cobra"
)

const programName = "audiencia"

// NewRootCommand はサブコマンドを登録したルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
// ログとコマンド出力はwに書き込む。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Public hearing registration API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, w)
		},
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		serveCommand(w),
		migrateCommand(w),
		importLegacyCommand(w),
		dbcheckCommand(w),
		healthcheckCommand(),
	)
	return root
}

func serve(cmd *cobra.Command, w io.Writer) error {
	cfg, logger, err := Init(w)
	if err != nil {
		return err
	}
	return runServe(cmd.Context(), cfg, logger)
}

func serveCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply schema migrations and start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, w)
		},
	}
}

func migrateCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg, logger, cmd.OutOrStdout())
		},
	}
}

func importLegacyCommand(w io.Writer) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Copy registrations from the legacy SQLite file into PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Init(w)
			if err != nil {
				return err
			}
			return runImportLegacy(cmd.Context(), cfg, logger, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "path to the legacy SQLite file (default: LEGACY_SQLITE_PATH)")
	cmd.Flags().BoolVar(&opts.dedupeDetails, "dedupe-details", false, "skip detailed registrations whose content was already imported")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "run the import and roll back, reporting counts only")
	cmd.Flags().StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write migration row counters to this file in Prometheus text format")
	return cmd
}

func dbcheckCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "dbcheck",
		Short: "Connect to PostgreSQL and print the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Init(w)
			if err != nil {
				return err
			}
			return runDBCheck(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
}

// healthcheckCommand は軽量サブコマンドのため、フル初期化をスキップする。
func healthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the local /health endpoint (for container health checks)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(healthcheckPort())
		},
	}
}
