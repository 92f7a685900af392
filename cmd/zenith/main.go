package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenithml/zenith/internal/workflow"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/registry"
	"github.com/zenithml/zenith/pkg/dataset"
	"github.com/zenithml/zenith/pkg/json"
	"github.com/zenithml/zenith/pkg/logger"
	"github.com/zenithml/zenith/pkg/mlengine"
	"github.com/zenithml/zenith/pkg/observability"

	// Import all available connectors to register them
	_ "github.com/zenithml/zenith/pkg/connector/destinations/csv"
	_ "github.com/zenithml/zenith/pkg/connector/destinations/gcs"
	_ "github.com/zenithml/zenith/pkg/connector/sources/bigquery"
	_ "github.com/zenithml/zenith/pkg/connector/sources/csv"
)

var version = "0.1.0"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configFile string
	projectID  string
	bqDataset  string
	location   string
	logLevel   string
}

// trainFlags are shared by the model-facing subcommands.
type trainFlags struct {
	datasetName  string
	modelName    string
	modelType    string
	sampleEveryN int
	limit        int64
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "zenith",
		Short: "Zenith - BigQuery ML training and dataset export toolkit",
		Long: `Zenith trains linear models with BigQuery ML, inspects and evaluates
them, exports training datasets as sharded CSV files to Cloud Storage,
and submits packaged training jobs to the managed training service.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{
				Level:    flags.logLevel,
				Encoding: "console",
			})
		},
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&flags.projectID, "project", "", "GCP project ID (overrides config)")
	root.PersistentFlags().StringVar(&flags.bqDataset, "bq-dataset", "", "BigQuery dataset holding models (overrides config)")
	root.PersistentFlags().StringVar(&flags.location, "location", "", "BigQuery location (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(versionCommand())
	root.AddCommand(listCommand())
	root.AddCommand(trainCommand(flags))
	root.AddCommand(trainingInfoCommand(flags))
	root.AddCommand(evaluateCommand(flags))
	root.AddCommand(predictCommand(flags))
	root.AddCommand(weightsCommand(flags))
	root.AddCommand(exportCommand(flags))
	root.AddCommand(submitCommand(flags))
	root.AddCommand(jobStatusCommand(flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Zenith v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available datasets and connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Datasets:")
			for _, name := range dataset.List() {
				ds, err := dataset.Get(name)
				if err != nil {
					continue
				}
				fmt.Printf("  - %s: %s\n", name, ds.Description())
			}
			fmt.Println("\nSource Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Printf("  - %s\n", source)
			}
			fmt.Println("\nDestination Connectors:")
			for _, dest := range registry.ListDestinations() {
				fmt.Printf("  - %s\n", dest)
			}
		},
	}
}

func trainCommand(flags *rootFlags) *cobra.Command {
	tf := &trainFlags{}
	var modelOptions []string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model with BigQuery ML",
		Long: `Train a linear model on a dataset's training split.

Example:
  zenith train --data natality --model babyweight_model --sample-every-n 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cfg)
			defer cancel()

			opts, err := trainOptions(tf, modelOptions)
			if err != nil {
				return err
			}
			return workflow.Train(ctx, cfg, opts)
		},
	}

	addTrainFlags(cmd, tf)
	cmd.Flags().StringArrayVar(&modelOptions, "model-option", nil, "Extra CREATE MODEL option as key=value (repeatable)")
	return cmd
}

func trainingInfoCommand(flags *rootFlags) *cobra.Command {
	tf := &trainFlags{}

	cmd := &cobra.Command{
		Use:   "training-info",
		Short: "Show the per-iteration loss curve of a trained model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cfg)
			defer cancel()

			opts, err := trainOptions(tf, nil)
			if err != nil {
				return err
			}

			iterations, err := workflow.TrainingInfo(ctx, cfg, opts)
			if err != nil {
				return err
			}

			fmt.Printf("%-10s %-14s %-14s %-14s %s\n",
				"iteration", "loss", "eval_loss", "learning_rate", "duration_ms")
			for _, it := range iterations {
				evalLoss, lr := "-", "-"
				if it.EvalLoss.Valid {
					evalLoss = fmt.Sprintf("%.6f", it.EvalLoss.Float64)
				}
				if it.LearningRate.Valid {
					lr = fmt.Sprintf("%.6f", it.LearningRate.Float64)
				}
				fmt.Printf("%-10d %-14.6f %-14s %-14s %d\n",
					it.Iteration, it.Loss, evalLoss, lr, it.DurationMs)
			}
			return nil
		},
	}

	addTrainFlags(cmd, tf)
	return cmd
}

func evaluateCommand(flags *rootFlags) *cobra.Command {
	tf := &trainFlags{}
	var crossCheck bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a trained model on the evaluation split",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cfg)
			defer cancel()

			opts, err := trainOptions(tf, nil)
			if err != nil {
				return err
			}

			result, err := workflow.Evaluate(ctx, cfg, opts, crossCheck)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	addTrainFlags(cmd, tf)
	cmd.Flags().BoolVar(&crossCheck, "cross-check", false, "Recompute metrics client-side from ML.PREDICT output")
	return cmd
}

func predictCommand(flags *rootFlags) *cobra.Command {
	tf := &trainFlags{}
	var (
		inputSQL string
		features []string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run batch prediction",
		Long: `Run ML.PREDICT. Input rows come from --input-sql, from inline
--feature values, or from the dataset's evaluation split.

Example:
  zenith predict --data taxifare --model taxifare_model \
    --feature pickuplon=-73.99 --feature pickuplat=40.75 \
    --feature dropofflon=-73.98 --feature dropofflat=40.74 \
    --feature passengers=2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cfg)
			defer cancel()

			opts, err := trainOptions(tf, nil)
			if err != nil {
				return err
			}
			opts.InputSQL = inputSQL

			if len(features) > 0 {
				opts.Features = make(map[string]string, len(features))
				for _, raw := range features {
					key, value, ok := strings.Cut(raw, "=")
					if !ok {
						return fmt.Errorf("invalid feature %q, expected column=value", raw)
					}
					opts.Features[key] = value
				}
			}

			rows, err := workflow.Predict(ctx, cfg, opts)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}

	addTrainFlags(cmd, tf)
	cmd.Flags().StringVar(&inputSQL, "input-sql", "", "SELECT statement providing prediction input rows")
	cmd.Flags().StringArrayVar(&features, "feature", nil, "Inline feature value as column=value (repeatable)")
	return cmd
}

func weightsCommand(flags *rootFlags) *cobra.Command {
	tf := &trainFlags{}

	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show the learned coefficients of a trained model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cfg)
			defer cancel()

			opts, err := trainOptions(tf, nil)
			if err != nil {
				return err
			}

			weights, err := workflow.Weights(ctx, cfg, opts)
			if err != nil {
				return err
			}

			fmt.Printf("%-30s %s\n", "input", "weight")
			for _, w := range weights {
				if w.Weight.Valid {
					fmt.Printf("%-30s %.6f\n", w.ProcessedInput, w.Weight.Float64)
				} else {
					fmt.Printf("%-30s (categorical)\n", w.ProcessedInput)
				}
			}
			return nil
		},
	}

	addTrainFlags(cmd, tf)
	return cmd
}

func exportCommand(flags *rootFlags) *cobra.Command {
	var (
		datasetName  string
		destination  string
		splits       []string
		sampleEveryN int
		limit        int64
		bucket       string
		prefix       string
		localDir     string
		shards       int
		compress     string
		header       bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a dataset as sharded CSV files",
		Long: `Export a dataset's train and eval splits through the streaming
pipeline into sharded CSV files on Cloud Storage or the local
filesystem.

Example:
  zenith export --data taxifare --destination gcs --bucket my-bucket --prefix taxifare --shards 4 --compression gzip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cfg)
			defer cancel()

			if bucket != "" {
				cfg.Sink.Bucket = bucket
			}
			if prefix != "" {
				cfg.Sink.Prefix = prefix
			}
			if localDir != "" {
				cfg.Sink.LocalDir = localDir
			}
			if shards > 0 {
				cfg.Sink.Shards = shards
			}
			if compress != "" {
				cfg.Sink.Compression = compress
			}
			cfg.Sink.WriteHeader = header

			parsed, err := parseSplits(splits)
			if err != nil {
				return err
			}

			result, err := workflow.Export(ctx, cfg, &workflow.ExportOptions{
				DatasetName:     datasetName,
				DestinationName: destination,
				Splits:          parsed,
				SampleEveryN:    sampleEveryN,
				Limit:           limit,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&datasetName, "data", "", "Dataset to export (required)")
	cmd.Flags().StringVar(&destination, "destination", "gcs", "Destination connector (gcs or csv)")
	cmd.Flags().StringSliceVar(&splits, "splits", []string{"train", "eval"}, "Splits to export")
	cmd.Flags().IntVar(&sampleEveryN, "sample-every-n", 0, "Keep one row in N per split (0 = all)")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Row cap per split (0 = unlimited)")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Cloud Storage bucket")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Object prefix; defaults to the dataset name")
	cmd.Flags().StringVar(&localDir, "local-dir", "", "Local output directory for the csv destination")
	cmd.Flags().IntVar(&shards, "shards", 0, "Number of output shards per split")
	cmd.Flags().StringVar(&compress, "compression", "", "Output compression (none, gzip, snappy)")
	cmd.Flags().BoolVar(&header, "header", true, "Write a header row per shard")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func submitCommand(flags *rootFlags) *cobra.Command {
	var (
		jobID          string
		packageURIs    []string
		pythonModule   string
		trainerArgs    []string
		region         string
		jobDir         string
		scaleTier      string
		runtimeVersion string
		pythonVersion  string
		wait           bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a packaged training job to the managed training service",
		Long: `Submit a packaged Python trainer to the managed training service.

Example:
  zenith submit --package gs://my-bucket/trainer-0.1.tar.gz \
    --module trainer.task --region us-central1 \
    --job-dir gs://my-bucket/jobs/babyweight --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cfg)
			defer cancel()

			status, err := workflow.Submit(ctx, cfg, &workflow.SubmitOptions{
				Spec: &mlengine.TrainingJobSpec{
					JobID:          jobID,
					PackageURIs:    packageURIs,
					PythonModule:   pythonModule,
					Args:           trainerArgs,
					Region:         region,
					JobDir:         jobDir,
					ScaleTier:      scaleTier,
					RuntimeVersion: runtimeVersion,
					PythonVersion:  pythonVersion,
				},
				Wait: wait,
			})
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Job ID; generated when empty")
	cmd.Flags().StringSliceVar(&packageURIs, "package", nil, "Cloud Storage URI of the trainer package (repeatable, required)")
	cmd.Flags().StringVar(&pythonModule, "module", "", "Trainer entry point module (required)")
	cmd.Flags().StringArrayVar(&trainerArgs, "arg", nil, "Argument passed to the trainer (repeatable)")
	cmd.Flags().StringVar(&region, "region", "", "Training region (required)")
	cmd.Flags().StringVar(&jobDir, "job-dir", "", "Cloud Storage path for job output")
	cmd.Flags().StringVar(&scaleTier, "scale-tier", "BASIC", "Machine configuration tier")
	cmd.Flags().StringVar(&runtimeVersion, "runtime-version", "", "Training runtime version")
	cmd.Flags().StringVar(&pythonVersion, "python-version", "", "Python version")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes")
	_ = cmd.MarkFlagRequired("package")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("region")
	return cmd
}

func jobStatusCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job-status <job-id>",
		Short: "Show the status of a training job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cfg)
			defer cancel()

			client, err := mlengine.NewClient(ctx, cfg)
			if err != nil {
				return err
			}

			status, err := client.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
	return cmd
}

// loadConfig loads the YAML config when given, applies flag overrides,
// and initializes tracing.
func loadConfig(flags *rootFlags) (*config.BaseConfig, error) {
	var cfg *config.BaseConfig
	if flags.configFile != "" {
		loaded, err := config.Load(flags.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.NewBaseConfig("zenith", "cli")
	}

	if flags.projectID != "" {
		cfg.GCP.ProjectID = flags.projectID
	}
	if flags.bqDataset != "" {
		cfg.GCP.Dataset = flags.bqDataset
	}
	if flags.location != "" {
		cfg.GCP.Location = flags.location
	}
	if flags.logLevel != "" {
		cfg.Observability.LogLevel = flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Observability.EnableTracing {
		if err := observability.Initialize(observability.TracingConfig{
			ServiceName:    "zenith",
			ServiceVersion: version,
			Enabled:        true,
			SamplingRate:   1.0,
		}); err != nil {
			logger.Get().Warn("tracing initialization failed", zap.Error(err))
		}
	}

	return cfg, nil
}

// commandContext derives a context honoring the configured job timeout.
func commandContext(cfg *config.BaseConfig) (context.Context, context.CancelFunc) {
	if cfg.Timeouts.Job > 0 {
		return context.WithTimeout(context.Background(), cfg.Timeouts.Job)
	}
	return context.WithCancel(context.Background())
}

func trainOptions(tf *trainFlags, rawOptions []string) (*workflow.TrainOptions, error) {
	opts := &workflow.TrainOptions{
		DatasetName:  tf.datasetName,
		ModelName:    tf.modelName,
		ModelType:    tf.modelType,
		SampleEveryN: tf.sampleEveryN,
		Limit:        tf.limit,
	}

	if len(rawOptions) > 0 {
		opts.ModelOptions = make(map[string]string, len(rawOptions))
		for _, raw := range rawOptions {
			key, value, ok := strings.Cut(raw, "=")
			if !ok {
				return nil, fmt.Errorf("invalid model option %q, expected key=value", raw)
			}
			opts.ModelOptions[key] = value
		}
	}

	return opts, nil
}

func addTrainFlags(cmd *cobra.Command, tf *trainFlags) {
	cmd.Flags().StringVar(&tf.datasetName, "data", "", "Dataset name (required)")
	cmd.Flags().StringVar(&tf.modelName, "model", "", "Model name within the BigQuery dataset (required)")
	cmd.Flags().StringVar(&tf.modelType, "model-type", "linear_reg", "BigQuery ML model type")
	cmd.Flags().IntVar(&tf.sampleEveryN, "sample-every-n", 0, "Keep one row in N (0 = all)")
	cmd.Flags().Int64Var(&tf.limit, "limit", 0, "Row cap (0 = unlimited)")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("model")
}

func parseSplits(raw []string) ([]dataset.Split, error) {
	splits := make([]dataset.Split, 0, len(raw))
	for _, s := range raw {
		split, err := dataset.ParseSplit(s)
		if err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}
	return splits, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
