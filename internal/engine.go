package internal

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/gnolang/symex/internal/analysis/cfg"
	"github.com/gnolang/symex/internal/config"
	"github.com/gnolang/symex/internal/frontend"
	"github.com/gnolang/symex/internal/frontend/golang"
	"github.com/gnolang/symex/internal/frontend/java"
	"github.com/gnolang/symex/internal/nolint"
	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/tree"
	tt "github.com/gnolang/symex/internal/types"
)

var ErrProcedureNotFound = errors.New("procedure not found")

// Engine analyzes source files: it lowers them, explores their procedures
// with the enabled rules and collects the issues.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *behavior.Registry
	metrics  *engine.Metrics
	cache    *Cache

	rules        map[string]LintRule
	severities   map[string]tt.Severity
	ignoredRules map[string]bool
	ignoredPaths []string
}

// NewEngine creates an engine for cfg. A nil cfg means the defaults.
func NewEngine(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("error loading behaviors: %w", err)
	}
	e := &Engine{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		ignoredRules: make(map[string]bool),
	}
	e.applyRules(cfg.Rules)
	return e, nil
}

func (e *Engine) applyRules(rules map[string]tt.ConfigRule) {
	e.rules = make(map[string]LintRule, len(allRuleConstructors))
	e.severities = make(map[string]tt.Severity, len(allRuleConstructors))
	for name, newRuleCstr := range allRuleConstructors {
		r := newRuleCstr()
		e.rules[name] = r
		e.severities[name] = r.Severity()
	}
	for name, rule := range rules {
		if _, ok := e.rules[name]; !ok {
			e.logger.Warn("unknown rule in configuration", zap.String("rule", name))
			continue
		}
		if rule.Severity == tt.SeverityOff {
			e.IgnoreRule(name)
			continue
		}
		e.severities[name] = rule.Severity
	}
}

// SetMetrics makes every exploration record into m.
func (e *Engine) SetMetrics(m *engine.Metrics) { e.metrics = m }

// SetCache makes Run reuse the issues of files whose content is unchanged.
func (e *Engine) SetCache(c *Cache) { e.cache = c }

func (e *Engine) IgnoreRule(rule string) {
	e.ignoredRules[rule] = true
}

// IgnorePath skips files under path, or matching it as a glob pattern.
func (e *Engine) IgnorePath(path string) {
	if path != "" {
		e.ignoredPaths = append(e.ignoredPaths, filepath.Clean(path))
	}
}

func (e *Engine) isIgnoredPath(filename string) bool {
	filename = filepath.Clean(filename)
	for _, p := range e.ignoredPaths {
		if filename == p || strings.HasPrefix(filename, p+string(filepath.Separator)) {
			return true
		}
		if ok, _ := filepath.Match(p, filename); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(filename)); ok {
			return true
		}
	}
	return false
}

// Rules returns the names of the enabled rules, sorted.
func (e *Engine) Rules() []string {
	var names []string
	for name := range e.rules {
		if !e.ignoredRules[name] {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (e *Engine) checks() []engine.Check {
	names := e.Rules()
	checks := make([]engine.Check, 0, len(names))
	for _, name := range names {
		checks = append(checks, e.rules[name])
	}
	return checks
}

// Run analyzes the file at filename and returns its issues.
func (e *Engine) Run(ctx context.Context, filename string) ([]tt.Issue, error) {
	if e.isIgnoredPath(filename) {
		return nil, nil
	}
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	var settings string
	if e.cache != nil {
		settings = e.settings()
		if issues, ok := e.cache.Get(filename, settings, src); ok {
			return issues, nil
		}
	}
	issues, err := e.RunSource(ctx, filename, src)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Set(filename, settings, src, issues); err != nil {
			e.logger.Warn("error saving cache", zap.Error(err))
		}
	}
	return issues, nil
}

// settings describes what shapes the issues of a file besides its content:
// the enabled rules with their severities, the exploration budgets and the
// configured behaviors.
func (e *Engine) settings() string {
	var sb strings.Builder
	for _, name := range e.Rules() {
		fmt.Fprintf(&sb, "%s=%s;", name, e.severities[name])
	}
	fmt.Fprintf(&sb, "%+v;%+v;%+v;%+v", e.cfg.Engine, e.cfg.Relations, e.cfg.Flow, e.cfg.Behaviors)
	return sb.String()
}

// RunSource analyzes src as the content of filename. The extension of
// filename selects the front end.
func (e *Engine) RunSource(ctx context.Context, filename string, src []byte) ([]tt.Issue, error) {
	logger := e.logger.With(zap.String("run", uuid.NewString()), zap.String("file", filename))
	u, err := e.load(ctx, filename, src, logger)
	if err != nil {
		return nil, err
	}
	issues, err := e.analyze(ctx, u, logger)
	if err != nil {
		return nil, err
	}

	nolintMgr := nolint.Parse(u.file, u.fset)
	filtered := issues[:0]
	for _, issue := range issues {
		pos := token.Position{Filename: issue.Filename, Line: issue.Start.Line}
		if nolintMgr.IsNolint(pos, issue.Rule) {
			continue
		}
		issue.Severity = e.severities[issue.Rule]
		filtered = append(filtered, issue)
	}
	slices.SortFunc(filtered, compareIssues)
	logger.Debug("file analyzed",
		zap.Int("procedures", len(u.file.Procedures)),
		zap.Int("issues", len(filtered)))
	return filtered, nil
}

func compareIssues(a, b tt.Issue) int {
	switch {
	case a.Start.Line != b.Start.Line:
		return a.Start.Line - b.Start.Line
	case a.Start.Column != b.Start.Column:
		return a.Start.Column - b.Start.Column
	}
	return strings.Compare(a.Rule, b.Rule)
}

// unit is a lowered file ready to be explored.
type unit struct {
	file  *tree.File
	fset  *token.FileSet
	procs []*tree.Procedure
	cache *behavior.Cache
	opts  engine.Options
}

func (e *Engine) parse(ctx context.Context, fset *token.FileSet, filename string, src []byte, logger *zap.Logger) (*tree.File, error) {
	lang, err := frontend.LanguageOf(filename)
	if err != nil {
		return nil, err
	}
	var f *tree.File
	switch lang {
	case tree.Java:
		f, err = java.ParseFile(ctx, fset, filename, src, java.WithLogger(logger))
	default:
		f, err = golang.ParseFile(fset, filename, src, golang.WithLogger(logger))
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}
	return f, nil
}

func (e *Engine) load(ctx context.Context, filename string, src []byte, logger *zap.Logger) (*unit, error) {
	fset := token.NewFileSet()
	f, err := e.parse(ctx, fset, filename, src, logger)
	if err != nil {
		return nil, err
	}

	u := &unit{file: f, fset: fset}
	for _, p := range f.Procedures {
		switch {
		case p.Unsupported != "":
			logger.Debug("skipping unsupported procedure",
				zap.String("procedure", p.Key),
				zap.String("reason", p.Unsupported))
		case e.cfg.Engine.MaxComplexity > 0 && p.Complexity > e.cfg.Engine.MaxComplexity:
			logger.Debug("skipping complex procedure",
				zap.String("procedure", p.Key),
				zap.Int("complexity", p.Complexity))
		default:
			u.procs = append(u.procs, p)
		}
	}

	opts := e.cfg.EngineOptions()
	opts.Logger = logger
	opts.Fset = fset
	opts.Filename = filename
	opts.Metrics = e.metrics
	u.cache = behavior.NewCache(behavior.NewProcedures(u.procs...), &engine.BehaviorExplorer{Options: opts}, e.registry, logger)
	opts.Behaviors = u.cache
	u.opts = opts
	return u, nil
}

// analyze explores the procedures of u level by level over the call graph,
// so that callee behaviors are known before their callers run.
func (e *Engine) analyze(ctx context.Context, u *unit, logger *zap.Logger) ([]tt.Issue, error) {
	opts := u.opts
	opts.Checks = e.checks()
	w := engine.New(opts)

	var (
		mu     sync.Mutex
		issues []tt.Issue
	)
	for _, level := range schedule(u.procs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.WorkerCount())
		for _, comp := range level {
			comp := comp
			g.Go(func() error {
				for _, p := range comp {
					if err := gctx.Err(); err != nil {
						return err
					}
					found, err := e.explore(gctx, w, u, p, logger)
					if err != nil {
						logger.Error("exploration failed", zap.String("procedure", p.Key), zap.Error(err))
						continue
					}
					mu.Lock()
					issues = append(issues, found...)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return issues, nil
}

func (e *Engine) explore(ctx context.Context, w *engine.Walker, u *unit, p *tree.Procedure, logger *zap.Logger) (issues []tt.Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exploring %s: %v", p.Key, r)
		}
	}()
	u.cache.Get(ctx, p.Key)
	res, err := w.Explore(ctx, p, nil)
	if err != nil {
		return nil, fmt.Errorf("exploring %s: %w", p.Key, err)
	}
	if res.Partial {
		logger.Warn("step budget exhausted",
			zap.String("procedure", p.Key),
			zap.Int("steps", res.Steps))
	}
	return res.Issues, nil
}

// Behaviors returns the behaviors computed for the procedures of filename,
// sorted by key.
func (e *Engine) Behaviors(ctx context.Context, filename string) ([]*behavior.Behavior, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	logger := e.logger.With(zap.String("file", filename))
	u, err := e.load(ctx, filename, src, logger)
	if err != nil {
		return nil, err
	}
	for _, level := range schedule(u.procs) {
		for _, comp := range level {
			for _, p := range comp {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				u.cache.Get(ctx, p.Key)
			}
		}
	}
	var res []*behavior.Behavior
	for _, key := range u.cache.Keys() {
		if b, _ := u.cache.Lookup(key); b != nil {
			res = append(res, b)
		}
	}
	return res, nil
}

// CFG returns the control flow graph of the procedure named fn in filename,
// with the file set its positions refer to.
func (e *Engine) CFG(ctx context.Context, filename, fn string) (*cfg.CFG, *token.FileSet, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading file: %w", err)
	}
	fset := token.NewFileSet()
	f, err := e.parse(ctx, fset, filename, src, e.logger)
	if err != nil {
		return nil, nil, err
	}
	p := f.Lookup(fn)
	if p == nil {
		return nil, nil, fmt.Errorf("%w: %s in %s", ErrProcedureNotFound, fn, filename)
	}
	if p.Body == nil || p.Unsupported != "" {
		return nil, nil, fmt.Errorf("%s: unsupported procedure: %s", fn, p.Unsupported)
	}
	return cfg.Build(p.Body), fset, nil
}
