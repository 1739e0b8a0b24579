package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"survey-collector/processor"
	"survey-collector/types"
)

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath string
	logLevel   string
}

type extractOptions struct {
	count       int
	since       string
	parallelism int
	save        bool
	format      string
	outputDir   string
	upload      bool
	store       bool
}

type loadOptions struct {
	bucket string
	keys   []string
}

type exportOptions struct {
	traceID   string
	format    string
	outputDir string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "survey-collector",
		Short: "Collect recent survey articles from an IEEE Xplore magazine",
		Long: `Collects the newest articles of an IEEE Xplore magazine published up to a
cutoff date, and writes them to a CSV or XLSX file, an S3 archive or a DynamoDB table.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default: CONFIG_BUCKET/CONFIG_KEY in S3, else built-in defaults)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newExtractCommand(opts))
	cmd.AddCommand(newLoadCommand(opts))
	cmd.AddCommand(newExportCommand(opts))

	return cmd
}

func newExtractCommand(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the newest articles published up to a date",
		Long: `Extract resolves the magazine's issue catalog, expands issues newest first
until enough article links are collected, fetches the articles in parallel and keeps
the newest --count of them.

Example:
  survey-collector extract -n 20 --since 2023-06-30 --save --format xlsx --output-dir ./out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := cmd.Flags().Changed
			ov := overrides{
				Parallelism: opts.parallelism,
				Format:      opts.format,
				OutputDir:   opts.outputDir,
				LogLevel:    root.logLevel,
			}
			if set("save") {
				ov.Save = &opts.save
			}
			if set("upload") {
				ov.Upload = &opts.upload
			}
			if set("store") {
				ov.Store = &opts.store
			}

			report, err := runExtract(cmd, root, opts, ov)
			if err != nil {
				return errorHandler.Handle(err, "extract")
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "number of articles to return (required)")
	cmd.Flags().StringVar(&opts.since, "since", "", "latest publication date to consider, YYYY-MM-DD (default: today)")
	cmd.Flags().IntVarP(&opts.parallelism, "parallelism", "j", 0, "number of article fetch workers (default: CPUs - 1)")
	cmd.Flags().BoolVar(&opts.save, "save", false, "write the records to a file")
	cmd.Flags().StringVar(&opts.format, "format", "", "output file format: csv or xlsx")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "directory for the output file")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "archive the run result to S3")
	cmd.Flags().BoolVar(&opts.store, "store", false, "upsert the records into DynamoDB")
	if err := cmd.MarkFlagRequired("count"); err != nil {
		return nil
	}

	return cmd
}

func runExtract(cmd *cobra.Command, root *rootOptions, opts *extractOptions, ov overrides) (*pipelineReport, error) {
	ctx := cmd.Context()

	since, err := parseSince(opts.since)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfiguration(ctx, root.configPath)
	if err != nil {
		return nil, err
	}
	if err := ov.apply(cfg); err != nil {
		return nil, err
	}
	applyLogLevel(cfg, root.logLevel)

	p, err := newPipeline(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	return p.Run(ctx, types.ExtractionRequest{
		Count:       opts.count,
		Since:       since,
		Parallelism: opts.parallelism,
	})
}

func newLoadCommand(root *rootOptions) *cobra.Command {
	opts := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load archived run results from S3 into DynamoDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runLoad(cmd, root, opts)
			if err != nil {
				return errorHandler.Handle(err, "load")
			}
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Status == processor.StatusFailed {
				return errorHandler.Handle(errLoadFailed(result), "load")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "archive bucket (default: aws.s3.archive_bucket)")
	cmd.Flags().StringSliceVar(&opts.keys, "key", nil, "archive object key, repeatable (required)")
	if err := cmd.MarkFlagRequired("key"); err != nil {
		return nil
	}

	return cmd
}

func runLoad(cmd *cobra.Command, root *rootOptions, opts *loadOptions) (*processor.ProcessResult, error) {
	ctx := cmd.Context()

	cfg, err := loadConfiguration(ctx, root.configPath)
	if err != nil {
		return nil, err
	}
	if err := (overrides{LogLevel: root.logLevel}).apply(cfg); err != nil {
		return nil, err
	}
	applyLogLevel(cfg, root.logLevel)

	bucket := opts.bucket
	if bucket == "" {
		bucket = cfg.AWS.S3.ArchiveBucket
	}

	locations := make([]processor.ArchiveLocation, 0, len(opts.keys))
	for _, key := range opts.keys {
		locations = append(locations, processor.ArchiveLocation{Bucket: bucket, Key: key})
	}

	p, err := newArchiveProcessor(cfg, appLogger)
	if err != nil {
		return nil, err
	}
	return p.ProcessArchives(ctx, locations)
}

func newExportCommand(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the articles a stored run put into DynamoDB as CSV or XLSX",
		Long: `Export reads back the articles written by one run, newest first, and writes
them to stdout, or to a file when --output-dir is given.

Example:
  survey-collector export --trace-id 0f8e... --format csv > run.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfiguration(ctx, root.configPath)
			if err != nil {
				return errorHandler.Handle(err, "export")
			}
			if err := (overrides{Format: opts.format, LogLevel: root.logLevel}).apply(cfg); err != nil {
				return errorHandler.Handle(err, "export")
			}
			applyLogLevel(cfg, root.logLevel)

			reader, err := newArticleReader(cfg, appLogger)
			if err != nil {
				return errorHandler.Handle(err, "export")
			}

			path, count, err := exportRun(ctx, reader, opts.traceID, cfg.Output.Format, opts.outputDir, cmd.OutOrStdout())
			if err != nil {
				return errorHandler.Handle(err, "export")
			}
			appLogger.InfoWithCount("Export completed", count, map[string]interface{}{
				"trace_id": opts.traceID,
				"path":     path,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.traceID, "trace-id", "", "trace id of the run to export (required)")
	cmd.Flags().StringVar(&opts.format, "format", "", "output format: csv or xlsx")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "write a file into this directory instead of stdout")
	if err := cmd.MarkFlagRequired("trace-id"); err != nil {
		return nil
	}

	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
