package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/frontend"
	tt "github.com/gnolang/symex/internal/types"
)

// settleDelay lets a burst of writes to one file count as one change.
const settleDelay = 100 * time.Millisecond

// Watch re-analyzes supported files under dirs whenever they are written,
// handing the issues to report. It blocks until ctx is done.
func (e *Engine) Watch(ctx context.Context, dirs []string, report func(filename string, issues []tt.Issue)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range dirs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(settleDelay)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !frontend.Supported(event.Name) || e.isIgnoredPath(event.Name) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(settleDelay)
		case <-timer.C:
			for name := range pending {
				issues, err := e.Run(ctx, name)
				if err != nil {
					e.logger.Error("error analyzing changed file", zap.String("file", name), zap.Error(err))
					continue
				}
				report(name, issues)
			}
			pending = make(map[string]bool)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watch error", zap.Error(err))
		}
	}
}
