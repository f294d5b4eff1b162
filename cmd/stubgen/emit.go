package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stubgen/internal/codegen"
	"stubgen/internal/masm"
)

var emitCmd = &cobra.Command{
	Use:   "emit <stub>",
	Short: "Print the generated code of one stub",
	Long:  "Generate a stub for one target and print it as a listing (text), as JSON, or as its msgpack encoding.",
	Args:  cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return stubNames(), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: emitExecution,
}

func init() {
	emitCmd.Flags().StringSlice("target", nil, "target triple (default: first configured target)")
	emitCmd.Flags().String("format", "text", "output format (text|json|msgpack)")
	emitCmd.Flags().Bool("debug-code", false, "emit debug assertions")
	emitCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
}

func emitExecution(cmd *cobra.Command, args []string) error {
	stub, err := codegen.StubByName(args[0])
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	switch format {
	case "text", "json", "msgpack":
	default:
		return errInvalidFlag("--format", format, "text|json|msgpack")
	}
	outPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	s := current
	if err := applyTargetFlag(cmd, &s); err != nil {
		return err
	}
	if err := applyDebugFlag(cmd, &s); err != nil {
		return err
	}
	if len(s.Targets) != 1 && cmd.Flags().Changed("target") {
		return fmt.Errorf("emit takes a single --target, got %d", len(s.Targets))
	}
	target := s.Targets[0]

	prog, err := codegen.Build(cmd.Context(), stub, target, s.codegenOptions())
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	color := useColor(cmd)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %q: %w", outPath, err)
		}
		defer f.Close()
		out = f
		color = false
	}
	return writeProgram(out, prog, format, color)
}

func writeProgram(out io.Writer, prog *masm.Program, format string, color bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(prog)
	case "msgpack":
		data, err := masm.EncodeProgram(prog)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	default:
		return prog.WriteListing(out, masm.ListingOptions{Color: color})
	}
}

func stubNames() []string {
	names := make([]string, 0, len(codegen.Stubs()))
	for _, s := range codegen.Stubs() {
		names = append(names, s.String())
	}
	return names
}
