package runs

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/sutta-concepts/internal/setup"
	dbpkg "github.com/dtnitsch/sutta-concepts/pkg/db"
)

const timeFormat = "2006-01-02 15:04:05"

func openLedger(c *cli.Context) *setup.Runtime {
	rt := setup.Load(c)
	if rt.Config.Ledger.Path == "" {
		rt.Logger.Error("run ledger is disabled; set ledger.path in the config")
		os.Exit(setup.ExitSetup)
	}
	if err := rt.OpenLedger(); err != nil {
		setup.Fail(rt.Logger, "cannot read run ledger", err)
	}
	return rt
}

// RunsAction lists recent pipeline runs.
func RunsAction(c *cli.Context) error {
	rt := openLedger(c)
	defer rt.Ledger.Close()

	runs, err := rt.Ledger.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if stage := c.String("stage"); stage != "" {
		runs = filterStage(runs, stage)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(runTable(runs)).Render(); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d runs\n", len(runs))
	fmt.Printf("\nTip: Use 'sutta-concepts run <id>' to see skipped items\n")
	return nil
}

// RunAction shows one run, or the latest one when no id is given.
func RunAction(c *cli.Context) error {
	rt := openLedger(c)
	defer rt.Ledger.Close()

	runID, err := runIDOrLatest(c, rt.Ledger)
	if err != nil {
		return err
	}
	run, err := rt.Ledger.GetRun(runID)
	if err != nil {
		return err
	}
	skips, err := rt.Ledger.GetRunSkips(runID)
	if err != nil {
		return err
	}

	fmt.Print(describeRun(run))

	if len(skips) > 0 {
		data := pterm.TableData{{"Item", "Kind", "Reason"}}
		for _, s := range skips {
			data = append(data, []string{s.ItemID, s.Kind, s.Reason})
		}
		fmt.Printf("\nSkipped (%d):\n", len(skips))
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}
	return nil
}

func runIDOrLatest(c *cli.Context, database *dbpkg.DB) (string, error) {
	if c.NArg() > 0 {
		return c.Args().First(), nil
	}
	runs, err := database.ListRuns(1)
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs found. Run 'sutta-concepts extract' first")
	}
	return runs[0].RunID, nil
}

func filterStage(runs []dbpkg.Run, stage string) []dbpkg.Run {
	var out []dbpkg.Run
	for _, r := range runs {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

func runTable(runs []dbpkg.Run) pterm.TableData {
	data := pterm.TableData{{"Run", "Stage", "Started", "Status", "Total", "Succeeded", "Skipped", "Fingerprint"}}
	for _, r := range runs {
		data = append(data, []string{
			r.RunID,
			r.Stage,
			r.StartedAt.Local().Format(timeFormat),
			r.Status,
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Skipped),
			formatFingerprint(r.Fingerprint),
		})
	}
	return data
}

// formatFingerprint renders k=v pairs in key order.
func formatFingerprint(fp map[string]string) string {
	keys := make([]string, 0, len(fp))
	for k := range fp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fp[k]
	}
	return strings.Join(parts, " ")
}

func describeRun(r *dbpkg.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", r.RunID)
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Stage:       %s\n", r.Stage)
	fmt.Fprintf(&b, "Fingerprint: %s\n", formatFingerprint(r.Fingerprint))
	fmt.Fprintf(&b, "Started:     %s\n", r.StartedAt.Local().Format(timeFormat))
	if r.FinishedAt != nil {
		fmt.Fprintf(&b, "Finished:    %s (%s)\n", r.FinishedAt.Local().Format(timeFormat), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "Status:      %s\n", r.Status)
	fmt.Fprintf(&b, "Items:       %d pending (%d succeeded, %d skipped)\n", r.Total, r.Succeeded, r.Skipped)
	if r.AbortedAt != "" {
		fmt.Fprintf(&b, "Aborted at:  item %s\n", r.AbortedAt)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Error:       %s\n", r.Error)
	}
	return b.String()
}
