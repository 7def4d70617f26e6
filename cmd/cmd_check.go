package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sdprobe/core"
	"sdprobe/core/validation"
)

// backendCheckTimeout bounds the accelerator query against the worker.
const backendCheckTimeout = 15 * time.Second

// CheckHandler validates the output directory, presets, history and backend.
func CheckHandler(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	backend, err := newBackend(env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer closeBackend(backend)

	failFast, _ := cmd.Flags().GetBool("fail-fast")
	quiet, _ := cmd.Flags().GetBool("quiet")

	suite := validation.NewValidationSuite().
		WithOutput(cmd.OutOrStdout()).
		WithShowProgress(!quiet).
		WithFailFast(failFast).
		Add("Output directory", validation.OutputDirWritable(env.cfg.OutputDir)).
		Add("Presets", validation.PresetsFile(env.cfg.PresetsFile)).
		Add("Model", validation.Model(env.cfg.Model)).
		Add("Log file", validation.LogFile(env.logger.LogFilePath()))
	if !env.cfg.NoHistory {
		// a database under the output directory cannot open if that failed
		if insideDir(env.cfg.OutputDir, env.cfg.DBPath) {
			suite.AddDependent("History database", validation.HistoryDB(env.cfg.DBPath))
		} else {
			suite.Add("History database", validation.HistoryDB(env.cfg.DBPath))
		}
	}
	suite.Add("Diffusion backend", func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
		defer cancel()
		msg, err := validation.Backend(backend)(ctx)
		return msg, backendError(err)
	})

	result := suite.Validate(cmd.Context(), "sdprobe "+core.VersionInfo())
	if !result.Success {
		return fmt.Errorf("%d of %d checks failed: %w",
			result.FailedSteps, result.TotalSteps, errors.Join(result.GetErrors()...))
	}
	return nil
}

// insideDir reports whether path lies under dir.
func insideDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
