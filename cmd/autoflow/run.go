package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/autoflow"
	"github.com/aretw0/autoflow/internal/cli"
	"github.com/aretw0/autoflow/internal/presentation/tui"
	"github.com/aretw0/autoflow/pkg/adapters/file"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/spf13/cobra"
)

// errRunFailed makes the process exit non-zero when a node failed.
var errRunFailed = errors.New("run finished with failed nodes")

var runCmd = &cobra.Command{
	Use:   "run <file|id>",
	Short: "Run a workflow once in the foreground",
	Long: `Runs a workflow definition file, or a stored workflow by id, and prints the run report.
With --event the context is seeded like an inbound event and the run is tagged as triggered.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString("context")
		asEvent, _ := cmd.Flags().GetBool("event")
		jsonMode, _ := cmd.Flags().GetBool("json")

		seed := map[string]any{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &seed); err != nil {
				return fmt.Errorf("error parsing --context JSON: %w", err)
			}
		}
		mode := domain.RunModeManual
		if asEvent {
			mode = domain.RunModeTriggered
			seed = autoflow.SeedFromPayload(seed)
		}

		rt, err := cli.NewEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		wf, err := resolveWorkflow(ctx, rt.Engine, args[0])
		if err != nil {
			return err
		}

		report, err := rt.Engine.Execute(ctx, wf, mode, seed)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonMode {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			rendered, err := tui.NewRenderer()(tui.ReportMarkdown(report))
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
		}

		if report.Failed() {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("context", "", "Initial execution context as a JSON object")
	runCmd.Flags().Bool("event", false, "Seed the context like an inbound event (triggered mode)")
	runCmd.Flags().Bool("json", false, "Print the run report as JSON")
}

// resolveWorkflow loads ref as a definition file when it exists on disk,
// otherwise as the id of a stored workflow.
func resolveWorkflow(ctx context.Context, engine *autoflow.Engine, ref string) (*domain.Workflow, error) {
	if _, err := os.Stat(ref); err == nil {
		wf, err := file.Load(ref)
		if err != nil {
			return nil, err
		}
		if err := wf.Validate(); err != nil {
			return nil, err
		}
		return wf, nil
	}
	return engine.Get(ctx, ref)
}
