package lint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/term"

	"github.com/gnolang/symex/internal"
	"github.com/gnolang/symex/internal/config"
	"github.com/gnolang/symex/internal/frontend"
	tt "github.com/gnolang/symex/internal/types"
)

type LintEngine interface {
	Run(ctx context.Context, filePath string) ([]tt.Issue, error)
	RunSource(ctx context.Context, filename string, source []byte) ([]tt.Issue, error)
	IgnoreRule(rule string)
	IgnorePath(path string)
}

// New builds an engine from the configuration file at configurationPath.
// An empty path looks for the default file in rootDir.
func New(rootDir, configurationPath string, logger *zap.Logger) (*internal.Engine, error) {
	if configurationPath == "" && rootDir != "" {
		candidate := filepath.Join(rootDir, config.DefaultPath)
		if _, err := os.Stat(candidate); err == nil {
			configurationPath = candidate
		}
	}
	cfg, err := config.Load(configurationPath)
	if err != nil {
		return nil, err
	}
	return internal.NewEngine(cfg, logger)
}

// Source is an in-memory file. Filename selects the front end.
type Source struct {
	Filename string
	Content  []byte
}

func ProcessSources(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	sources []Source,
	processor func(context.Context, LintEngine, Source) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return allIssues, err
		}
		issues, err := processor(ctx, engine, source)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing source", zap.String("source", source.Filename), zap.Error(err))
			}
			return nil, err
		}
		allIssues = append(allIssues, issues...)
	}
	return allIssues, nil
}

func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	paths []string,
	processor func(context.Context, LintEngine, string) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for _, path := range paths {
		issues, err := ProcessPath(ctx, logger, engine, path, processor)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return allIssues, err
		}
		allIssues = append(allIssues, issues...)
	}
	return allIssues, nil
}

// ProcessPath analyzes path, or every supported file under it. Files are
// processed by a pool of runtime.NumCPU() workers; a failing file is logged
// and skipped. A progress bar is drawn when stdout is a terminal.
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	path string,
	processor func(context.Context, LintEngine, string) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}
	if !info.IsDir() {
		if !frontend.Supported(path) {
			return nil, nil
		}
		return processor(ctx, engine, path)
	}

	files, err := collectFiles(path)
	if err != nil {
		return nil, err
	}
	bar := newProgressBar(len(files), path)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		issues = make([]tt.Issue, 0)
	)
	sem := make(chan struct{}, runtime.NumCPU())

	var cancelled error
	for _, filePath := range files {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
		case sem <- struct{}{}:
		}
		if cancelled != nil {
			break
		}
		wg.Add(1)
		go func(fp string) {
			defer wg.Done()
			defer func() { <-sem }()

			bar.Describe(filepath.Base(fp))
			fileIssues, err := processor(ctx, engine, fp)
			_ = bar.Add(1)
			if err != nil {
				if logger != nil {
					logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
				}
				return
			}
			mu.Lock()
			issues = append(issues, fileIssues...)
			mu.Unlock()
		}(filePath)
	}
	wg.Wait()
	_ = bar.Finish()

	slices.SortStableFunc(issues, func(a, b tt.Issue) int {
		switch {
		case a.Filename < b.Filename:
			return -1
		case a.Filename > b.Filename:
			return 1
		}
		return a.Start.Line - b.Start.Line
	})
	if cancelled == nil {
		cancelled = ctx.Err()
	}
	return issues, cancelled
}

func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(filePath string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fileInfo.IsDir() && frontend.Supported(filePath) {
			files = append(files, filePath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", root, err)
	}
	return files, nil
}

func newProgressBar(n int, description string) *progressbar.ProgressBar {
	var w io.Writer = io.Discard
	if term.IsTerminal(int(os.Stdout.Fd())) {
		w = os.Stdout
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func ProcessFile(ctx context.Context, engine LintEngine, filePath string) ([]tt.Issue, error) {
	return engine.Run(ctx, filePath)
}

func ProcessSource(ctx context.Context, engine LintEngine, source Source) ([]tt.Issue, error) {
	return engine.RunSource(ctx, source.Filename, source.Content)
}

// IsCancelled reports whether err comes from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
