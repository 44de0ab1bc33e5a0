package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/symex/internal"
	"github.com/gnolang/symex/internal/analysis/cfg"
)

// variable for flags
var (
	funcName string
	output   string
)

var cfgCmd = &cobra.Command{
	Use:   "cfg [paths...]",
	Short: "Print the control flow graph of a procedure",
	Long: `Outputs the Control Flow Graph (CFG) of the specified procedure in DOT format or renders it with GraphViz.
Example) symex cfg --func MyFunction *.go`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 || funcName == "" {
			fmt.Println("error: Please provide --func and file paths")
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		eng, err := internal.NewEngine(nil, logger)
		if err != nil {
			logger.Fatal("Failed to initialize analysis engine", zap.Error(err))
		}
		if !runCFGAnalysis(ctx, logger, eng, os.Stdout, args, funcName, output) {
			fmt.Printf("Function not found: %s\n", funcName)
			os.Exit(1)
		}
	},
}

func init() {
	cfgCmd.Flags().StringVar(&funcName, "func", "", "Procedure name for CFG analysis")
	cfgCmd.Flags().StringVarP(&output, "output", "o", "", "Output path for rendered GraphViz file")
}

// runCFGAnalysis prints the graph of the first procedure named funcName in
// paths. It reports whether one was found.
func runCFGAnalysis(ctx context.Context, logger *zap.Logger, eng *internal.Engine, w io.Writer, paths []string, funcName string, output string) bool {
	for _, path := range paths {
		g, fset, err := eng.CFG(ctx, path, funcName)
		if errors.Is(err, internal.ErrProcedureNotFound) {
			continue
		}
		if err != nil {
			logger.Error("Failed to build CFG", zap.String("path", path), zap.Error(err))
			continue
		}

		var buf strings.Builder
		g.PrintDot(&buf, fset, nil)
		fmt.Fprintln(w, summarizeCFG(g))
		if output != "" {
			if err := cfg.RenderToGraphVizFile([]byte(buf.String()), output); err != nil {
				logger.Error("Failed to render CFG to GraphViz file", zap.Error(err))
			} else {
				fmt.Fprintf(w, "GraphViz file created: %s\n", output)
			}
		} else {
			fmt.Fprintf(w, "CFG for function %s in file %s:\n%s\n", funcName, path, buf.String())
		}
		return true
	}
	return false
}

// summarizeCFG describes the shape of g in one line.
func summarizeCFG(g *cfg.CFG) string {
	var dead []string
	for _, b := range g.Unreachable() {
		dead = append(dead, b.String())
	}
	res := fmt.Sprintf("blocks: %d, loops: %t", len(g.Blocks), g.HasCycle())
	if len(dead) > 0 {
		res += ", unreachable: " + strings.Join(dead, " ")
	}
	return res
}
