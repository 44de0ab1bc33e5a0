package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/symex/internal"
	"github.com/gnolang/symex/lint"
)

var behaviorsCmd = &cobra.Command{
	Use:   "behaviors [files...]",
	Short: "Print the behaviors computed for each procedure",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file paths")
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		eng, err := lint.New(".", cfgFile, logger)
		if err != nil {
			logger.Fatal("Failed to initialize analysis engine", zap.Error(err))
		}
		if err := printBehaviors(ctx, eng, os.Stdout, args); err != nil {
			logger.Error("Error computing behaviors", zap.Error(err))
			os.Exit(1)
		}
	},
}

// printBehaviors writes the behaviors of each file in paths, each followed by
// how many of its yields return and how many throw.
func printBehaviors(ctx context.Context, eng *internal.Engine, w io.Writer, paths []string) error {
	for _, path := range paths {
		bs, err := eng.Behaviors(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(w, "%s:\n", path)
		for _, b := range bs {
			fmt.Fprintln(w, b)
			fmt.Fprintf(w, "  = %d returning, %d throwing\n", len(b.HappyPaths()), len(b.Exceptions()))
		}
	}
	return nil
}
