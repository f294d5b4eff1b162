package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stubgen/internal/buildpipeline"
	"stubgen/internal/codegen"
	"stubgen/internal/observ"
	"stubgen/internal/stubcache"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags]",
	Short: "Generate, verify and cache every stub",
	Long:  "Generate every stub for every configured target, run the self-check scenarios on the simulator and store verified programs in the stub cache.",
	Args:  cobra.NoArgs,
	RunE:  buildExecution,
}

func init() {
	buildCmd.Flags().StringSlice("target", nil, "target triples (default: configured targets)")
	buildCmd.Flags().StringSlice("stub", nil, "stubs to build (default: all)")
	buildCmd.Flags().Bool("debug-code", false, "emit debug assertions")
	buildCmd.Flags().Int("jobs", 0, "targets built in parallel (0 = GOMAXPROCS)")
	buildCmd.Flags().Bool("no-cache", false, "do not read or write the stub cache")
	buildCmd.Flags().Bool("drop-cache", false, "clear the stub cache before building")
	buildCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func buildExecution(cmd *cobra.Command, args []string) error {
	timer := observ.NewTimer()
	setup := timer.Begin("setup")

	s := current
	if err := applyTargetFlag(cmd, &s); err != nil {
		return err
	}
	if err := applyDebugFlag(cmd, &s); err != nil {
		return err
	}
	if cmd.Flags().Changed("jobs") {
		jobs, err := cmd.Flags().GetInt("jobs")
		if err != nil {
			return err
		}
		s.Jobs = jobs
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}
	if noCache {
		s.Cache = false
	}
	dropCache, err := cmd.Flags().GetBool("drop-cache")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	stubNames, err := cmd.Flags().GetStringSlice("stub")
	if err != nil {
		return err
	}
	var stubs []codegen.Stub
	for _, name := range stubNames {
		stub, err := codegen.StubByName(name)
		if err != nil {
			return err
		}
		stubs = append(stubs, stub)
	}

	req := &buildpipeline.Request{
		Targets: s.Targets,
		Stubs:   stubs,
		Options: s.codegenOptions(),
		Jobs:    s.Jobs,
	}
	if s.Cache {
		cache, err := openCache(s)
		if err != nil {
			return err
		}
		if dropCache {
			if err := cache.DropAll(); err != nil {
				return fmt.Errorf("failed to drop stub cache: %w", err)
			}
		}
		req.Cache = cache
	}
	timer.End(setup, "")

	run := timer.Begin("build")
	var res buildpipeline.Result
	if shouldUseTUI(mode, quiet(cmd)) {
		res, err = runBuildWithUI(cmd.Context(), "stubgen build", req)
	} else {
		res, err = buildpipeline.Build(cmd.Context(), req)
	}
	timer.End(run, fmt.Sprintf("%d artifact(s)", len(res.Artifacts)))
	if err != nil {
		reportBuildError(cmd, err)
		dumpRing(cmd)
		return err
	}

	out := cmd.OutOrStdout()
	if !quiet(cmd) {
		cached := 0
		for _, art := range res.Artifacts {
			if art == nil {
				continue
			}
			state := fmt.Sprintf("%d instructions, %d scenario(s) passed", len(art.Program.Instrs), passed(art))
			if art.Cached {
				cached++
				state = fmt.Sprintf("%d instructions, cached", len(art.Program.Instrs))
			}
			fmt.Fprintf(out, "%-40s %s\n", art.Name(), state)
		}
		fmt.Fprintf(out, "built %d stub(s) for %d target(s), %d from cache\n", len(res.Artifacts), len(s.Targets), cached)
	}
	if timingsEnabled(cmd) {
		if quiet(cmd) {
			return printStageTimings(out, res.Timings)
		}
		foldStageTimings(timer, res.Timings)
		fmt.Fprint(out, timer.Summary())
	}
	return nil
}

func passed(art *buildpipeline.Artifact) int {
	n := 0
	for _, r := range art.Results {
		if r.Err == nil && !r.Skipped {
			n++
		}
	}
	return n
}

func openCache(s settings) (*stubcache.Cache, error) {
	if s.CacheDir != "" {
		return stubcache.Open(s.CacheDir)
	}
	if s.ConfigPath != "" {
		return stubcache.Open(filepath.Join(filepath.Dir(s.ConfigPath), ".stubgen-cache"))
	}
	return stubcache.OpenDefault("stubgen")
}

func reportBuildError(cmd *cobra.Command, err error) {
	var verr *buildpipeline.VerifyError
	if !errors.As(err, &verr) {
		return
	}
	var b strings.Builder
	for _, r := range verr.Results {
		if r.Err != nil {
			fmt.Fprintf(&b, "  FAIL %s: %v\n", r.Scenario, r.Err)
		}
	}
	fmt.Fprint(cmd.ErrOrStderr(), b.String())
}

func timingsEnabled(cmd *cobra.Command) bool {
	t, err := cmd.Root().PersistentFlags().GetBool("timings")
	return err == nil && t
}
