package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sdprobe/core"
	"sdprobe/db"
	"sdprobe/logging"
	"sdprobe/reprstore"
	"sdprobe/sdruntime"
)

// allPositions on the command line selects every position of the pipeline.
const allPositions = "all"

// GenerateHandler runs one generation, saves it under the output directory
// and records it in the history.
func GenerateHandler(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	params, err := generateParams(cmd, args, env.cfg.Positions)
	if err != nil {
		return err
	}
	noSave, _ := cmd.Flags().GetBool("no-save")
	noHistory, _ := cmd.Flags().GetBool("no-history")

	device, err := sdruntime.ParseDevice(env.cfg.Device)
	if err != nil {
		return core.ErrInvalidDevice(env.cfg.Device)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if env.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, env.cfg.Timeout)
		defer cancel()
	}

	backend, err := newBackend(env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer closeBackend(backend)

	runID := uuid.NewString()
	log := env.logger.With(zap.String("run_id", runID), zap.String("backend", backend.Name()))

	rec := db.RunRecord{
		ID:             runID,
		Model:          env.cfg.Model,
		Device:         string(device),
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Seed:           params.Seed,
		Steps:          params.Steps,
		Width:          params.Width,
		Height:         params.Height,
	}
	if params.GuidanceScale != nil {
		rec.GuidanceScale = *params.GuidanceScale
	}
	history := !noHistory && !env.cfg.NoHistory
	fail := func(err error) error {
		err = backendError(err)
		if history {
			rec.Status = db.StatusError
			rec.ErrorMessage = err.Error()
			recordRun(ctx, env, rec)
		}
		return err
	}

	start := time.Now()
	gen, err := sdruntime.NewGenerator(ctx, backend, env.cfg.Model, device, sdruntime.WithLogger(log))
	if err != nil {
		return fail(err)
	}
	defer gen.Close()

	rec.Pretrained = gen.Preset().Pretrained
	rec.Device = string(gen.Device())
	if slices.Contains(params.ExtractPositions, allPositions) {
		params.ExtractPositions = gen.Positions()
	}
	log.Debug("pipeline ready", zap.Duration("load_time", time.Since(start)))

	res, err := gen.Generate(ctx, params)
	if err != nil {
		return fail(err)
	}

	rec.Seed = res.Seed
	rec.Steps = res.Steps
	rec.GuidanceScale = res.GuidanceScale
	rec.Width = res.Width
	rec.Height = res.Height
	rec.Positions = res.Positions()
	rec.DurationMS = res.Duration.Milliseconds()

	var manifest *reprstore.Manifest
	if !noSave {
		dir := filepath.Join(env.cfg.OutputDir, runID)
		manifest, err = reprstore.Save(dir, res)
		if err != nil {
			return fail(fmt.Errorf("save run: %w", err))
		}
		rec.OutputDir = dir
		log.Info("run saved", zap.String("dir", dir), zap.Int("files", len(manifest.Files)))
	}

	if history {
		rec.Status = db.StatusSuccess
		recordRun(ctx, env, rec)
	}

	printSummary(cmd.OutOrStdout(), runID, res, rec.OutputDir, manifest)
	return nil
}

// generateParams reads the generation flags. defaultPositions applies when
// no --position is given.
func generateParams(cmd *cobra.Command, args []string, defaultPositions []string) (sdruntime.GenerateParams, error) {
	flags := cmd.Flags()
	p := sdruntime.GenerateParams{
		Prompt: sdruntime.SanitizePrompt(strings.Join(args, " ")),
	}
	p.NegativePrompt, _ = flags.GetString("negative")
	p.Steps, _ = flags.GetInt("steps")
	p.Seed, _ = flags.GetInt64("seed")
	p.Width, _ = flags.GetInt("width")
	p.Height, _ = flags.GetInt("height")
	if flags.Changed("guidance") {
		g, _ := flags.GetFloat64("guidance")
		p.GuidanceScale = sdruntime.Guidance(g)
	}
	positions := defaultPositions
	if flags.Changed("position") {
		positions, _ = flags.GetStringSlice("position")
	}
	for _, pos := range positions {
		if pos = strings.TrimSpace(pos); pos != "" && !slices.Contains(p.ExtractPositions, pos) {
			p.ExtractPositions = append(p.ExtractPositions, pos)
		}
	}

	if err := sdruntime.ValidateParams(p); err != nil {
		return p, err
	}
	return p, nil
}

// recordRun stores rec in the history. Failures are logged, not returned:
// a generation that succeeded should not fail because of the history.
func recordRun(ctx context.Context, env *environment, rec db.RunRecord) {
	ctx = context.WithoutCancel(ctx)

	d, err := db.Open(env.cfg.DBPath)
	if err != nil {
		env.logger.Warn("history unavailable", zap.String("path", env.cfg.DBPath), zap.Error(err))
		return
	}
	defer d.Close()

	if _, err := db.NewRepository(d).InsertRun(ctx, rec); err != nil {
		env.logger.Warn("failed to record run", zap.String("run_id", rec.ID), zap.Error(err))
	}
}

func printSummary(w io.Writer, runID string, res *sdruntime.Result, dir string, m *reprstore.Manifest) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	faint := color.New(color.Faint)

	green.Fprintf(w, "✓ Generated %dx%d image in %s\n", res.Width, res.Height, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  %s %s\n", bold.Sprint("Run:     "), runID)
	fmt.Fprintf(w, "  %s %s (%s on %s)\n", bold.Sprint("Model:   "), res.Model, res.Pretrained, res.Device)
	fmt.Fprintf(w, "  %s %d\n", bold.Sprint("Seed:    "), res.Seed)
	rate := ""
	if sps := (logging.GenerationMetrics{Steps: res.Steps, Duration: res.Duration}).StepsPerSecond(); sps > 0 {
		rate = " " + faint.Sprintf("(%.1f steps/s)", sps)
	}
	fmt.Fprintf(w, "  %s %d, guidance %.2f%s\n", bold.Sprint("Steps:   "), res.Steps, res.GuidanceScale, rate)

	for _, pos := range res.Positions() {
		captures := res.Representations[pos]
		shape := "-"
		if len(captures) > 0 {
			shape = fmt.Sprint(captures[0].Shape())
		}
		fmt.Fprintf(w, "  %s %s x%d %s\n", bold.Sprint("Captured:"), pos, len(captures), faint.Sprint(shape))
	}

	if m != nil {
		var total int64
		for _, f := range m.Files {
			total += f.Size
		}
		fmt.Fprintf(w, "  %s %s %s\n", bold.Sprint("Saved:   "), dir,
			faint.Sprintf("(%d files, %s)", len(m.Files), core.FormatBytes(total)))
	}
}
