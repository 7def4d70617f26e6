package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"sdprobe/sdruntime"
)

// ModelsHandler lists the registered presets, optionally filtered by a name
// prefix. The configured model is marked with "*".
func ModelsHandler(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	matches := func(name string) bool {
		return len(args) == 0 || strings.HasPrefix(strings.ToLower(name), strings.ToLower(args[0]))
	}

	var data [][]string
	for _, p := range sdruntime.Presets() {
		if !matches(p.Name) {
			continue
		}
		name := p.Name
		if p.Name == env.cfg.Model {
			name += " *"
		}
		loader := "default"
		if p.Loader != nil {
			loader = "lightning"
		}
		data = append(data, []string{
			name,
			p.Pretrained,
			strconv.Itoa(p.Steps),
			fmt.Sprintf("%.1f", p.GuidanceScale),
			loader,
		})
	}

	// a configured model that is no preset is loaded as a raw identifier
	if model := env.cfg.Model; !sdruntime.IsKnownPreset(model) && matches(model) {
		data = append(data, []string{model + " *", model, "-", "-", "raw"})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"NAME", "PRETRAINED", "STEPS", "GUIDANCE", "LOADER"})
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
