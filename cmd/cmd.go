// Package cmd implements the sdprobe command line.
//
// Every handler loads its environment the same way: the optional env file,
// SDPROBE_* variables, then persistent flag overrides. Handlers write results
// to the command's stdout and logs to its stderr.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sdprobe/core"
	"sdprobe/logging"
	"sdprobe/remote"
	"sdprobe/sdruntime"
	"sdprobe/similarity"
)

// environment is what a handler needs besides its own flags.
type environment struct {
	cfg    *core.Config
	logger *logging.Logger
}

func (e *environment) Close() {
	_ = e.logger.Sync()
}

// loadEnvironment reads the configuration, applies flag overrides, builds the
// logger and registers presets from SDPROBE_PRESETS_FILE.
func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	flags := cmd.Flags()

	envFile, _ := flags.GetString("env-file")
	cfg, err := core.LoadConfig(envFile)
	if err != nil {
		return nil, err
	}

	if flags.Changed("device") {
		v, _ := flags.GetString("device")
		cfg.Device = strings.ToLower(v)
	}
	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir, _ = flags.GetString("output-dir")
		if !flags.Changed("db") && os.Getenv(core.EnvDBPath) == "" {
			cfg.DBPath = filepath.Join(cfg.OutputDir, "history.db")
		}
	}
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := logging.ParseLogLevelString(cfg.LogLevel, logging.WarnLevel)
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = logging.DebugLevel
	}
	logger, err := logging.NewLoggerWithOptions(logging.Options{
		Development: cfg.DevMode,
		Level:       &level,
		FilePath:    cfg.LogFile,
		File:        logging.DefaultFileWriterConfig(),
		Console:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	if cfg.PresetsFile != "" {
		n, err := sdruntime.LoadPresetsFile(cfg.PresetsFile)
		if err != nil {
			return nil, core.ErrInvalidValue(core.EnvPresetsFile, cfg.PresetsFile, err.Error())
		}
		logger.Debug("presets registered", zap.String("file", cfg.PresetsFile), zap.Int("count", n))
	}

	return &environment{cfg: cfg, logger: logger}, nil
}

// newBackend picks the remote worker when one is configured and the stub
// backend otherwise. Tests replace it.
var newBackend = func(cfg *core.Config, logger *logging.Logger) (sdruntime.Backend, error) {
	if !cfg.HasWorker() {
		return sdruntime.StubBackend{}, nil
	}
	return remote.NewClient(remote.Config{
		URL:    cfg.WorkerURL,
		Token:  cfg.WorkerToken,
		DType:  cfg.WorkerDType,
		Logger: logger,
	})
}

func closeBackend(b sdruntime.Backend) {
	if c, ok := b.(io.Closer); ok {
		c.Close()
	}
}

// backendError turns a rejected worker token into a configuration error.
func backendError(err error) error {
	if errors.Is(err, remote.ErrUnauthorized) {
		return core.ErrWorkerAuth(err.Error())
	}
	return err
}

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sdprobe",
		Short:         "Instrumented text-to-image generation",
		Long:          "Generate images with diffusion models while capturing internal network representations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Version: core.VersionInfo(),
	}
	rootCmd.SetVersionTemplate("sdprobe {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.String("env-file", "", "Load environment from this file instead of ./.env")
	pf.String("device", "", "Compute device: auto, cuda, mps or cpu (overrides "+core.EnvDevice+")")
	pf.String("model", "", "Preset name or pretrained identifier (overrides "+core.EnvModel+")")
	pf.String("output-dir", "", "Directory for saved runs (overrides "+core.EnvOutputDir+")")
	pf.String("db", "", "Run history database (overrides "+core.EnvDBPath+")")
	pf.BoolP("verbose", "v", false, "Log at debug level")

	generateCmd := &cobra.Command{
		Use:     "generate PROMPT",
		Aliases: []string{"gen"},
		Short:   "Generate an image and capture representations",
		Args:    cobra.MinimumNArgs(1),
		RunE:    GenerateHandler,
	}
	gf := generateCmd.Flags()
	gf.String("negative", "", "Negative prompt")
	gf.Int("steps", 0, "Inference steps (0 uses the preset default)")
	gf.Float64("guidance", 0, "Guidance scale (preset default when not set)")
	gf.Int64("seed", -1, "Seed in [0, 2^32); -1 picks one at random")
	gf.Int("width", 0, "Image width in pixels (0 uses the pipeline default)")
	gf.Int("height", 0, "Image height in pixels (0 uses the pipeline default)")
	gf.StringSliceP("position", "p", nil, "Network position to capture; repeatable, \"all\" for every position")
	gf.Bool("no-save", false, "Do not write the run to the output directory")
	gf.Bool("no-history", false, "Do not record the run in the history database")

	modelsCmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"presets"},
		Short:   "List model presets",
		Args:    cobra.MaximumNArgs(1),
		RunE:    ModelsHandler,
	}

	similarityCmd := &cobra.Command{
		Use:   "similarity REPR1 REPR2",
		Short: "Compare one spatial vector against every vector of another representation",
		Long: "Compare one spatial vector against every vector of another representation.\n\n" +
			"REPR1 and REPR2 are run directories (with --position), representation files, or http(s) URLs.",
		Args: cobra.ExactArgs(2),
		RunE: SimilarityHandler,
	}
	sf := similarityCmd.Flags()
	sf.String("func", string(similarity.Cosine), "Similarity function: cosine, euclidean, manhattan or chebyshev")
	sf.String("position", "", "Network position, when comparing run directories")
	sf.Int("step1", 0, "Step of the base vector in REPR1")
	sf.Int("step2", 0, "Step compared in REPR2")
	sf.Int("row", 0, "Row of the base vector")
	sf.Int("col", 0, "Column of the base vector")
	sf.Int("n", 0, "Grid edge length (read from the manifest for run directories)")
	sf.Int("m", 0, "Feature dimension (read from the manifest for run directories)")
	sf.Bool("json", false, "Print the flat result as JSON")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE:  HistoryHandler,
	}
	historyCmd.Flags().Int("limit", 0, "Maximum number of runs (0 uses the default)")

	historyShowCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  HistoryShowHandler,
	}

	historyPruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old history entries",
		Args:  cobra.NoArgs,
		RunE:  HistoryPruneHandler,
	}
	historyPruneCmd.Flags().Int("older-than", 30, "Delete runs older than this many days")

	historyCmd.AddCommand(historyShowCmd, historyPruneCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect RUN_DIR",
		Short: "Verify a saved run and summarise its tensors",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}
	inspectCmd.Flags().Bool("no-verify", false, "Skip checksum verification")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, storage and the diffusion backend",
		Args:  cobra.NoArgs,
		RunE:  CheckHandler,
	}
	checkCmd.Flags().Bool("fail-fast", false, "Stop at the first failed check")
	checkCmd.Flags().BoolP("quiet", "q", false, "Print nothing unless a check fails")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "sdprobe", core.VersionInfo())
			return nil
		},
	}

	rootCmd.AddCommand(
		generateCmd,
		modelsCmd,
		similarityCmd,
		historyCmd,
		inspectCmd,
		checkCmd,
		versionCmd,
	)

	return rootCmd
}
