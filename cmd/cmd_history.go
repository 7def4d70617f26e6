package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"sdprobe/core"
	"sdprobe/db"
)

func openHistory(env *environment) (*db.Database, error) {
	if env.cfg.NoHistory {
		return nil, fmt.Errorf("history is disabled (%s)", core.EnvNoHistory)
	}
	return db.Open(env.cfg.DBPath)
}

// HistoryHandler lists the most recent runs.
func HistoryHandler(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	d, err := openHistory(env)
	if err != nil {
		return err
	}
	defer d.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := db.NewRepository(d).ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range runs {
		status := r.Status
		if r.Status == db.StatusError {
			status = color.RedString(r.Status)
		}
		data = append(data, []string{
			shortID(r.ID),
			r.Model,
			strconv.FormatInt(r.Seed, 10),
			strconv.Itoa(r.Steps),
			truncate(r.Prompt, 40),
			status,
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "MODEL", "SEED", "STEPS", "PROMPT", "STATUS", "CREATED"})
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

// HistoryShowHandler prints every field of one run. The id may be a unique prefix.
func HistoryShowHandler(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	d, err := openHistory(env)
	if err != nil {
		return err
	}
	defer d.Close()

	repo := db.NewRepository(d)
	r, err := repo.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	field := func(name, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "%s %s\n", bold.Sprintf("%-16s", name+":"), value)
	}
	field("ID", r.ID)
	field("Status", r.Status)
	field("Error", r.ErrorMessage)
	field("Model", r.Model)
	field("Pretrained", r.Pretrained)
	field("Device", r.Device)
	field("Prompt", r.Prompt)
	field("Negative prompt", r.NegativePrompt)
	field("Seed", strconv.FormatInt(r.Seed, 10))
	field("Steps", strconv.Itoa(r.Steps))
	field("Guidance", strconv.FormatFloat(r.GuidanceScale, 'f', 2, 64))
	if r.Width > 0 && r.Height > 0 {
		field("Size", fmt.Sprintf("%dx%d", r.Width, r.Height))
	}
	field("Positions", strings.Join(r.Positions, ", "))
	field("Output", r.OutputDir)
	field("Duration", (time.Duration(r.DurationMS) * time.Millisecond).String())
	field("Created", r.CreatedAt.Local().Format(time.RFC3339))
	return nil
}

// HistoryPruneHandler deletes runs older than --older-than days. Saved run
// directories are left alone.
func HistoryPruneHandler(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	days, _ := cmd.Flags().GetInt("older-than")
	if days < 0 {
		return core.ErrInvalidValue("--older-than", strconv.Itoa(days), "must not be negative")
	}

	d, err := openHistory(env)
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.PruneOlderThan(cmd.Context(), days)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs older than %d days (%s)\n",
		res.Deleted, days, res.Duration.Round(time.Millisecond))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
