package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stubgen/internal/selfcheck"
)

var runCmd = &cobra.Command{
	Use:   "run [example...]",
	Short: "Run the end-to-end examples on the simulator",
	Long:  "Build the stubs behind the named examples (default: all) and run them on the simulated machine. Scenario names of the form <stub>/<scenario> are accepted too; --all runs every scenario.",
	RunE:  runExecution,
}

func init() {
	runCmd.Flags().StringSlice("target", nil, "target triples (default: configured targets)")
	runCmd.Flags().Bool("debug-code", false, "emit debug assertions")
	runCmd.Flags().Bool("all", false, "run every scenario, not just the examples")
}

func runExecution(cmd *cobra.Command, args []string) error {
	s := current
	if err := applyTargetFlag(cmd, &s); err != nil {
		return err
	}
	if err := applyDebugFlag(cmd, &s); err != nil {
		return err
	}
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return err
	}

	var scenarios []selfcheck.Scenario
	switch {
	case len(args) > 0:
		for _, name := range args {
			sc, ok := selfcheck.Find(name)
			if !ok {
				return fmt.Errorf("unknown example %q", name)
			}
			scenarios = append(scenarios, sc)
		}
	case all:
		scenarios = selfcheck.All()
	default:
		scenarios = selfcheck.Examples()
	}

	ok := color.New(color.FgGreen).SprintFunc()
	skip := color.New(color.FgYellow).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	out := cmd.OutOrStdout()
	failed := 0
	for _, sc := range scenarios {
		for _, target := range s.Targets {
			res, err := selfcheck.RunScenario(cmd.Context(), sc, target, s.codegenOptions())
			if err != nil {
				return err
			}
			switch {
			case res.Err != nil:
				failed++
				fmt.Fprintf(out, "%s %s on %s: %v\n", fail("FAIL"), res.Scenario, res.Target, res.Err)
			case res.Skipped:
				if !quiet(cmd) {
					fmt.Fprintf(out, "%s %s on %s\n", skip("skip"), res.Scenario, res.Target)
				}
			default:
				if !quiet(cmd) {
					fmt.Fprintf(out, "%s %s on %s: %s\n", ok("ok  "), res.Scenario, res.Target, res.Detail)
				}
			}
		}
	}
	if failed > 0 {
		dumpRing(cmd)
		return fmt.Errorf("%d scenario run(s) failed", failed)
	}
	return nil
}
