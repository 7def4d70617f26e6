package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sdprobe/core"
	"sdprobe/reprstore"
	"sdprobe/similarity"
)

// reprSource is a resolved similarity argument.
type reprSource struct {
	location string
	n, m     int // 0 when the argument carries no manifest
}

// resolveRepr turns a run directory into the path of its saved buffer for
// position and reads the grid geometry from the manifest. Anything else is
// passed to the cache as is.
func resolveRepr(arg, position string) (reprSource, error) {
	fi, err := os.Stat(arg)
	if err != nil || !fi.IsDir() {
		return reprSource{location: arg}, nil
	}

	if position == "" {
		return reprSource{}, fmt.Errorf("%s is a run directory: --position is required", arg)
	}
	m, err := reprstore.LoadManifest(arg)
	if err != nil {
		return reprSource{}, err
	}
	f, err := m.Representation(position)
	if err != nil {
		return reprSource{}, err
	}
	// [steps, H, W, C]
	if len(f.Shape) != 4 || f.Shape[1] != f.Shape[2] {
		return reprSource{}, fmt.Errorf("%w: %s has shape %v, want a square [steps, n, n, m] grid",
			similarity.ErrShape, position, f.Shape)
	}
	return reprSource{
		location: filepath.Join(arg, filepath.FromSlash(f.Path)),
		n:        f.Shape[1],
		m:        f.Shape[3],
	}, nil
}

// SimilarityHandler fetches two representations and prints the similarity map
// of one base vector against the second representation.
func SimilarityHandler(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	flags := cmd.Flags()
	name, _ := flags.GetString("func")
	fn, err := similarity.ParseFunc(name)
	if err != nil {
		return err
	}
	position, _ := flags.GetString("position")

	src1, err := resolveRepr(args[0], position)
	if err != nil {
		return err
	}
	src2, err := resolveRepr(args[1], position)
	if err != nil {
		return err
	}

	var q similarity.Query
	q.Step1, _ = flags.GetInt("step1")
	q.Step2, _ = flags.GetInt("step2")
	q.Row, _ = flags.GetInt("row")
	q.Col, _ = flags.GetInt("col")
	q.N, q.M = src1.n, src1.m
	if q.N == 0 {
		q.N, q.M = src2.n, src2.m
	}
	if flags.Changed("n") {
		q.N, _ = flags.GetInt("n")
	}
	if flags.Changed("m") {
		q.M, _ = flags.GetInt("m")
	}
	if q.N <= 0 || q.M <= 0 {
		return core.ErrInvalidValue("--n/--m", fmt.Sprintf("%d/%d", q.N, q.M),
			"grid geometry is required when no run directory is given")
	}
	if src1.n != 0 && src2.n != 0 && (src1.n != src2.n || src1.m != src2.m) {
		return fmt.Errorf("%w: grids %dx%dx%d and %dx%dx%d differ",
			similarity.ErrShape, src1.n, src1.n, src1.m, src2.n, src2.n, src2.m)
	}

	opts := []reprstore.CacheOption{reprstore.WithLogger(env.logger)}
	if env.cfg.Timeout > 0 {
		opts = append(opts, reprstore.WithHTTPClient(&http.Client{Timeout: env.cfg.Timeout}))
	}
	cache := reprstore.NewCache(opts...)
	for _, loc := range []string{src1.location, src2.location} {
		if err := cache.Fetch(cmd.Context(), loc); err != nil {
			return err
		}
	}

	values, err := cache.Similarities(fn, src1.location, src2.location, q)
	if err != nil {
		return err
	}
	env.logger.Debug("similarity map",
		zap.String("func", string(fn)),
		zap.Int("n", q.N),
		zap.Int("m", q.M),
		zap.Int("cached", cache.Len()),
	)

	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(values)
	}
	printGrid(cmd.OutOrStdout(), values, q)
	return nil
}

// printGrid prints values as an n×n grid, row i column j, marking the base
// vector's cell.
func printGrid(w io.Writer, values []float64, q similarity.Query) {
	mark := color.New(color.FgYellow, color.Bold)
	for i := 0; i < q.N; i++ {
		cells := make([]string, q.N)
		for j := 0; j < q.N; j++ {
			cell := fmt.Sprintf("%.3f", values[j*q.N+i])
			if i == q.Row && j == q.Col {
				cell = mark.Sprint(cell)
			}
			cells[j] = cell
		}
		fmt.Fprintln(w, strings.Join(cells, " "))
	}
}
