package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"sdprobe/reprstore"
	"sdprobe/tensor"
)

// InspectHandler verifies a saved run directory and prints value ranges of
// its latents and captured representations.
func InspectHandler(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	dir := args[0]
	noVerify, _ := cmd.Flags().GetBool("no-verify")

	var m *reprstore.Manifest
	if noVerify {
		m, err = reprstore.LoadManifest(dir)
	} else {
		m, err = reprstore.Verify(dir)
	}
	if err != nil {
		return err
	}

	var data [][]string
	latent, err := reprstore.LoadLatent(dir)
	switch {
	case err == nil:
		data = append(data, tensorRow("latent", latent))
	case !errors.Is(err, reprstore.ErrFileNotFound):
		return err
	}
	for _, pos := range m.Positions() {
		t, err := reprstore.LoadRepresentation(dir, pos)
		if err != nil {
			return err
		}
		data = append(data, tensorRow(pos, t))
	}
	env.logger.Debug("run inspected",
		zap.String("dir", dir),
		zap.Int("files", len(m.Files)),
		zap.Bool("verified", !noVerify),
	)

	w := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	field := func(name, value string) {
		fmt.Fprintf(w, "%s %s\n", bold.Sprintf("%-10s", name+":"), value)
	}
	field("Prompt", m.Prompt)
	field("Model", fmt.Sprintf("%s (%s on %s)", m.Model, m.Pretrained, m.Device))
	field("Seed", strconv.FormatInt(m.Seed, 10))
	field("Steps", fmt.Sprintf("%d, guidance %.2f", m.Steps, m.GuidanceScale))
	field("Size", fmt.Sprintf("%dx%d", m.Width, m.Height))
	if !noVerify {
		field("Checksums", color.GreenString("%d files verified", len(m.Files)))
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"TENSOR", "SHAPE", "MIN", "MAX", "MEAN"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func tensorRow(name string, t *tensor.Tensor) []string {
	values := make([]float64, t.Len())
	for i, v := range t.Data() {
		values[i] = float64(v)
	}
	return []string{
		name,
		fmt.Sprint(t.Shape()),
		strconv.FormatFloat(floats.Min(values), 'f', 4, 64),
		strconv.FormatFloat(floats.Max(values), 'f', 4, 64),
		strconv.FormatFloat(floats.Sum(values)/float64(len(values)), 'f', 4, 64),
	}
}
