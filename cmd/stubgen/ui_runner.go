package main

import (
	"context"
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"stubgen/internal/buildpipeline"
	"stubgen/internal/codegen"
	"stubgen/internal/ui"
)

type buildOutcome struct {
	result buildpipeline.Result
	err    error
}

func runBuildWithUI(ctx context.Context, title string, req *buildpipeline.Request) (buildpipeline.Result, error) {
	if req == nil {
		return buildpipeline.Result{}, errors.New("missing build request")
	}
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan buildOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = buildpipeline.ChannelSink{Ch: events}
		res, err := buildpipeline.Build(ctx, &reqCopy)
		outcomeCh <- buildOutcome{result: res, err: err}
		close(events)
	}()

	targets := make([]string, len(req.Targets))
	for i, t := range req.Targets {
		targets[i] = t.Triple
	}
	stubs := req.Stubs
	if len(stubs) == 0 {
		stubs = codegen.Stubs()
	}
	stubNames := make([]string, len(stubs))
	for i, s := range stubs {
		stubNames[i] = s.String()
	}
	model := ui.NewProgressModel(title, targets, stubNames, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
