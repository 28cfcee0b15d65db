package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/bundle"
	"github.com/cathedral-fabric/fabric/internal/engine"
	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/internal/policy"
	"github.com/cathedral-fabric/fabric/internal/retrypolicy"
	"github.com/cathedral-fabric/fabric/internal/scheduler"
	"github.com/cathedral-fabric/fabric/internal/sim"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// SimOptions holds the sim command's flags.
type SimOptions struct {
	*RootOptions
	DAGPath    string
	ToolsPath  string
	CapsPath   string
	PolicyPath string
	Seed       uint64
	Count      int
	Sweep      bool
}

// NewSimCommand repeatedly drives the same DAG under a seeded,
// reproducible failure model and reports whether every run under the
// same seed ended with the same event count and final state hash:
// `sim [--seed N] [--count M]`.
func NewSimCommand(root *RootOptions) *cobra.Command {
	opts := &SimOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "sim",
		Short:         "replay the same DAG under a seeded failure model and check for divergence",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DAGPath, "dag", "", "path to a dag.json workflow definition (required)")
	cmd.Flags().StringVar(&opts.ToolsPath, "tools", "", "path to a tool bindings file (required)")
	cmd.Flags().StringVar(&opts.CapsPath, "caps", "", "path to a capability grant file (required)")
	cmd.Flags().StringVar(&opts.PolicyPath, "policy", "", "path to a policy definition file (required)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "base seed for the failure model")
	cmd.Flags().IntVar(&opts.Count, "count", 3, "number of runs: repeats of --seed, or distinct seeds with --sweep")
	cmd.Flags().BoolVar(&opts.Sweep, "sweep", false, "derive --count distinct seeds from --seed instead of repeating it")
	for _, name := range []string{"dag", "tools", "caps", "policy"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runSim(opts *SimOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	dagJSON, err := os.ReadFile(opts.DAGPath)
	if err != nil {
		return WrapExitError(ExitUserError, "read dag file", err)
	}
	dag, err := bundle.DAGFromJSON(dagJSON)
	if err != nil {
		return WrapExitError(ExitUserError, "parse dag file", err)
	}

	tools, err := loadToolRegistry(opts.ToolsPath)
	if err != nil {
		return WrapExitError(ExitUserError, "load tool bindings", err)
	}
	caps, err := loadCapabilitySet(opts.CapsPath)
	if err != nil {
		return WrapExitError(ExitUserError, "load capability grants", err)
	}
	def, err := loadPolicyDefinition(opts.PolicyPath)
	if err != nil {
		return WrapExitError(ExitUserError, "load policy definition", err)
	}
	compiled, err := policy.Compile(def)
	if err != nil {
		return WrapExitError(ExitUserError, "compile policy", err)
	}

	runFunc := func(seed uint64) (*eventlog.Log, error) {
		return driveSimRun(cmd, &dag, tools, caps, compiled, seed)
	}
	harness := sim.NewHarness(runFunc)

	if opts.Sweep {
		seeds := sim.SeedsFrom(opts.Seed, opts.Count)
		records, err := harness.Sweep(seeds)
		if err != nil {
			return WrapExitError(ExitVerificationFailed, "sweep", err)
		}
		return out.Success(map[string]any{"seeds": seeds, "records": recordReports(records)})
	}

	comparison, err := harness.RepeatSeed(opts.Seed, opts.Count)
	if err != nil {
		return WrapExitError(ExitVerificationFailed, "repeat seed", err)
	}
	report := map[string]any{
		"seed":      opts.Seed,
		"count":     opts.Count,
		"identical": comparison.Identical,
		"records":   recordReports(comparison.Records),
	}
	if !comparison.Identical {
		report["divergent_at"] = comparison.DivergentAt
		out.Success(report)
		return NewExitError(ExitVerificationFailed, "repeated runs diverged under the same seed")
	}
	return out.Success(report)
}

func recordReports(records []sim.Record) []map[string]any {
	reports := make([]map[string]any, 0, len(records))
	for _, r := range records {
		reports = append(reports, map[string]any{
			"seed":        r.Seed,
			"event_count": r.EventCount,
			"final_hash":  r.FinalHash.String(),
		})
	}
	return reports
}

// simWorkerFanout is how many redundant worker candidates driveSimRun
// provisions per distinct resource/capability profile in the DAG, so a
// failure model that takes one candidate down still leaves the
// scheduler a live one to dispatch onto.
const simWorkerFanout = 3

// driveSimRun runs dag to completion in a throwaway event log, with its
// worker pool perturbed by a FailureModel seeded from seed: for every
// redundant worker candidate the model's deterministic coin flip takes
// down, it starts the run already Draining or Unreachable instead of
// Idle. The same seed always rolls the same sequence of failures, so two
// calls with the same seed are expected to schedule identically and end
// with the same event count and final state hash (P5) — exactly what
// RepeatSeed checks. Worker ids are freshly generated per call, so the
// raw event bytes are not compared.
func driveSimRun(cmd *cobra.Command, dag *core.DAG, tools engine.Registry, caps *core.CapabilitySet, compiled *policy.CompiledPolicy, seed uint64) (*eventlog.Log, error) {
	dir, err := os.MkdirTemp("", "fabric-sim-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	log, err := eventlog.Create(filepath.Join(dir, "sim.cath-log"))
	if err != nil {
		return nil, err
	}

	runID := core.NewRunID()
	cfg := engine.Config{
		Scheduler: scheduler.Config{Strategy: scheduler.RoundRobin},
		Retry:     retrypolicy.NewExponential(3, 1),
	}
	run, err := engine.New(runID, dag, tools, caps, compiled, log, cfg)
	if err != nil {
		log.Close()
		return nil, err
	}

	model := sim.NewFailureModel(seed, 0.15, nil)
	for _, n := range dag.Nodes {
		for i := 0; i < simWorkerFanout; i++ {
			w := scheduler.NewWorkerState(core.NewWorkerID(), n.Resources, n.RequiredCapabilities)
			if model.ShouldFail() {
				w.Status = model.NextKind().Apply()
			}
			run.AddWorker(w)
		}
	}

	if err := run.Drive(cmd.Context()); err != nil {
		log.Close()
		return nil, fmt.Errorf("sim: run under seed %d failed: %w", seed, err)
	}
	if err := log.Close(); err != nil {
		return nil, err
	}
	return log, nil
}
