package masm

import (
	"bufio"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// ListingOptions control WriteListing.
type ListingOptions struct {
	Color bool
}

const mnemonicWidth = 22

// WriteListing prints the program one instruction per line with label
// definitions interleaved.
func (p *Program) WriteListing(w io.Writer, opts ListingOptions) error {
	labelStyle := color.New(color.Bold)
	macroStyle := color.New(color.FgYellow)
	branchStyle := color.New(color.FgMagenta)
	exitStyle := color.New(color.FgGreen)
	for _, c := range []*color.Color{labelStyle, macroStyle, branchStyle, exitStyle} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	byPC := make(map[int][]string, len(p.Labels))
	for l, pc := range p.Labels {
		if pc >= 0 {
			byPC[pc] = append(byPC[pc], p.LabelNames[l])
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "; %s for %s (%d instructions)\n", p.Name, p.Target.Triple, len(p.Instrs))
	for pc := 0; pc <= len(p.Instrs); pc++ {
		for _, name := range byPC[pc] {
			fmt.Fprintln(bw, labelStyle.Sprint(name+":"))
		}
		if pc == len(p.Instrs) {
			break
		}
		in := p.Instrs[pc]
		mn := runewidth.FillRight(in.Mnemonic(), mnemonicWidth)
		switch {
		case in.Op == OpExit:
			mn = exitStyle.Sprint(mn)
		case in.Op.IsMacro():
			mn = macroStyle.Sprint(mn)
		case in.Op == OpB || in.Op == OpBc:
			mn = branchStyle.Sprint(mn)
		}
		fmt.Fprintf(bw, "  %04d  %s%s\n", pc, mn, in.Operands(p.LabelName))
	}
	return bw.Flush()
}
