package main

import (
	"fmt"
	"io"
	"time"

	"stubgen/internal/buildpipeline"
	"stubgen/internal/observ"
)

// foldStageTimings adds every stage that ran to timer as a folded phase.
func foldStageTimings(timer *observ.Timer, timings *buildpipeline.Timings) {
	if timer == nil || timings == nil {
		return
	}
	for _, stage := range buildpipeline.Stages() {
		if !timings.Has(stage) {
			continue
		}
		timer.Fold(string(stage), timings.Duration(stage), "summed over items")
	}
}

// printStageTimings prints the summed duration of every stage that ran.
func printStageTimings(out io.Writer, timings *buildpipeline.Timings) error {
	if out == nil || timings == nil {
		return nil
	}
	for _, stage := range buildpipeline.Stages() {
		if !timings.Has(stage) {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s %.1f ms\n", stage, toMillis(timings.Duration(stage))); err != nil {
			return err
		}
	}
	return nil
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
