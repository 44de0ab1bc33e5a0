package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/symex/formatter"
	"github.com/gnolang/symex/internal"
	"github.com/gnolang/symex/internal/se/engine"
	tt "github.com/gnolang/symex/internal/types"
	"github.com/gnolang/symex/lint"
)

var (
	ignoreRules string
	ignorePaths string
	jsonOutput  bool
	outPath     string
	watchMode   bool
	metricsPath string
	cacheDir    string
)

var analyzeCmd = &cobra.Command{
	Use:     "analyze [paths...]",
	Aliases: []string{"lint"},
	Short:   "Explore every procedure and report the issues found",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}

		eng, err := lint.New(".", cfgFile, logger)
		if err != nil {
			logger.Fatal("Failed to initialize analysis engine", zap.Error(err))
		}
		applyIgnores(eng, ignoreRules, ignorePaths)
		if cacheDir != "" || watchMode {
			cache, err := internal.NewCache(cacheDir)
			if err != nil {
				logger.Fatal("Failed to open cache", zap.Error(err))
			}
			eng.SetCache(cache)
		}

		var reg *prometheus.Registry
		if metricsPath != "" {
			reg = prometheus.NewRegistry()
			eng.SetMetrics(engine.NewMetrics(reg))
		}

		if watchMode {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			runWatch(ctx, logger, eng, args, os.Stdout)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		issues, err := lint.ProcessFiles(ctx, logger, eng, args, lint.ProcessFile)
		if err != nil {
			if !lint.IsCancelled(err) {
				logger.Error("Error processing files", zap.Error(err))
				os.Exit(1)
			}
			logger.Warn("Analysis stopped early, reporting partial results", zap.Error(err))
		}

		if err := printIssues(os.Stdout, logger, issues, jsonOutput, outPath); err != nil {
			logger.Error("Error printing issues", zap.Error(err))
		}
		if reg != nil {
			families, err := writeMetrics(reg, metricsPath)
			if err != nil {
				logger.Error("Error writing metrics", zap.Error(err))
			}
			logger.Info("exploration metrics",
				zap.Float64("procedures", counterTotal(families, "symex_procedures_explored_total")),
				zap.Float64("steps", counterTotal(families, "symex_exploration_steps_total")),
				zap.Float64("exhausted", counterTotal(families, "symex_step_budget_exhausted_total")))
		}
		if len(issues) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&ignoreRules, "ignore", "", "Comma-separated list of rules to ignore")
	analyzeCmd.Flags().StringVar(&ignorePaths, "ignore-paths", "", "Comma-separated list of paths or globs to ignore")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output issues in JSON format")
	analyzeCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
	analyzeCmd.Flags().BoolVar(&watchMode, "watch", false, "Re-analyze files when they change")
	analyzeCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Directory keeping results of unchanged files between runs")
	analyzeCmd.Flags().StringVar(&metricsPath, "metrics", "", "Write exploration metrics in the Prometheus text format to this path")
}

func applyIgnores(eng lint.LintEngine, rules, paths string) {
	for _, rule := range splitList(rules) {
		eng.IgnoreRule(rule)
	}
	for _, path := range splitList(paths) {
		eng.IgnorePath(path)
	}
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}

func runWatch(ctx context.Context, logger *zap.Logger, eng *internal.Engine, paths []string, w io.Writer) {
	dirs := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logger.Error("Error accessing path", zap.String("path", p), zap.Error(err))
			continue
		}
		if !info.IsDir() {
			p = filepath.Dir(p)
		}
		dirs = append(dirs, p)
	}
	fmt.Fprintf(w, "watching %s\n", strings.Join(dirs, ", "))
	err := eng.Watch(ctx, dirs, func(filename string, issues []tt.Issue) {
		if len(issues) == 0 {
			fmt.Fprintf(w, "%s: no issues\n", filename)
			return
		}
		if err := printIssues(w, logger, issues, jsonOutput, ""); err != nil {
			logger.Error("Error printing issues", zap.Error(err))
		}
	})
	if err != nil && !lint.IsCancelled(err) {
		logger.Error("Watch stopped", zap.Error(err))
	}
}

func printIssues(w io.Writer, logger *zap.Logger, issues []tt.Issue, isJson bool, jsonOutput string) error {
	issuesByFile := make(map[string][]tt.Issue)
	for _, issue := range issues {
		issuesByFile[issue.Filename] = append(issuesByFile[issue.Filename], issue)
	}

	sortedFiles := make([]string, 0, len(issuesByFile))
	for filename := range issuesByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)

	if !isJson {
		for _, filename := range sortedFiles {
			sourceCode, err := internal.ReadSourceCode(filename)
			if err != nil {
				logger.Error("Error reading source file", zap.String("file", filename), zap.Error(err))
				continue
			}
			fmt.Fprintln(w, formatter.GenerateFormattedIssue(issuesByFile[filename], sourceCode))
		}
		return nil
	}

	d, err := json.Marshal(issuesByFile)
	if err != nil {
		return fmt.Errorf("error marshalling issues to JSON: %w", err)
	}
	if jsonOutput == "" {
		_, err = fmt.Fprintln(w, string(d))
		return err
	}
	if err := os.WriteFile(jsonOutput, d, 0o644); err != nil {
		return fmt.Errorf("error writing JSON output file: %w", err)
	}
	return nil
}

// writeMetrics writes every family gathered by reg to path and returns them.
func writeMetrics(reg prometheus.Gatherer, path string) ([]*dto.MetricFamily, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("error gathering metrics: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return families, fmt.Errorf("error creating metrics file: %w", err)
	}
	defer f.Close()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return families, fmt.Errorf("error writing metrics: %w", err)
		}
	}
	return families, nil
}

// counterTotal sums the samples of the counter family named name.
func counterTotal(families []*dto.MetricFamily, name string) float64 {
	for _, mf := range families {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}
