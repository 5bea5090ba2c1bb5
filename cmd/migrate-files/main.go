// Command migrate-files moves every uploaded submission file listed in the
// spreadsheet into a per-team folder of the submission bucket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ase-101/hackathon/internal/awsclient"
	"github.com/ase-101/hackathon/internal/config"
	"github.com/ase-101/hackathon/internal/db"
	"github.com/ase-101/hackathon/internal/logging"
	"github.com/ase-101/hackathon/internal/migrate"
	"github.com/ase-101/hackathon/internal/report"
	"github.com/ase-101/hackathon/internal/sheets"
	"github.com/ase-101/hackathon/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "migrate-files",
		Short:         "Move uploaded submission files into per-team folders",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.Flags())
		},
	}
	f := cmd.Flags()
	f.Bool("dry-run", false, "log the planned moves without touching storage or the sheet")
	f.String("credentials-path", "", "Google credentials JSON file (default ./google-credentials.json)")
	f.String("sheet-name", "", "sheet tab holding the submissions (default Sheet2)")
	f.String("log-level", "", "debug, info, warn or error")
	return cmd
}

func run(ctx context.Context, flags *pflag.FlagSet) error {
	v, err := config.New(flags)
	if err != nil {
		return migrate.ConfigurationError("load config", err)
	}
	cfg, err := config.LoadMigration(v)
	if err != nil {
		return migrate.ConfigurationError("load config", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return migrate.ConfigurationError("create logger", err)
	}
	defer func() { _ = log.Sync() }()

	awsCfg, err := awsclient.Load(ctx, cfg.Region)
	if err != nil {
		log.Error("cannot load aws config", zap.Error(err))
		return migrate.ConfigurationError("load aws config", err)
	}

	sheet, err := sheets.NewFromFile(ctx, cfg.CredentialsPath, cfg.SpreadsheetID, cfg.SheetName)
	if err != nil {
		log.Error("cannot create sheets client", zap.String("credentials_path", cfg.CredentialsPath), zap.Error(err))
		return migrate.AuthenticationError("open spreadsheet", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	mover := storage.NewMover(s3Client, cfg.SourceBucket, cfg.DestBucket)

	opts := migrate.Options{DryRun: cfg.DryRun}
	if cfg.StatusTable != "" {
		opts.Status = db.NewDynamoStatusStore(db.NewDynamoClient(awsCfg), cfg.StatusTable, cfg.SpreadsheetID, cfg.SheetName)
	}

	log.Info("starting migration",
		zap.String("spreadsheet_id", cfg.SpreadsheetID),
		zap.String("sheet", cfg.SheetName),
		zap.String("source_bucket", cfg.SourceBucket),
		zap.String("dest_bucket", cfg.DestBucket),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Bool("status_table", cfg.StatusTable != ""),
	)

	sum, runErr := migrate.New(sheet, mover, log, opts).Run(ctx)
	publish(context.WithoutCancel(ctx), log, awsCfg, s3Client, cfg, sum)
	return runErr
}

// publish writes the manifest and sends the summary. Failures are only logged.
func publish(ctx context.Context, log *zap.Logger, awsCfg aws.Config, api report.PutObjectAPI, cfg config.Migration, sum migrate.Summary) {
	var manifestKey string
	if cfg.ReportPrefix != "" && !cfg.DryRun {
		key, err := report.NewManifestWriter(api, cfg.DestBucket, cfg.ReportPrefix).Write(ctx, sum)
		if err != nil {
			log.Warn("cannot write run manifest", zap.Error(err))
		} else if key != "" {
			manifestKey = key
			log.Info("run manifest written", zap.String("key", key), zap.Int("objects", len(sum.Objects)))
		}
	}

	if cfg.TopicArn != "" {
		n := report.NewNotifier(sns.NewFromConfig(awsCfg), cfg.TopicArn)
		if err := n.Notify(ctx, cfg.SpreadsheetID, sum, manifestKey); err != nil {
			log.Warn("cannot publish run summary", zap.Error(err))
		}
	}
}
