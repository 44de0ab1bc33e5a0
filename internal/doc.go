// Package internal drives the analysis of source files.
//
// Engine lowers a file with the front end its extension selects, orders
// the procedures bottom-up over the call graph and explores each one with
// the enabled rules. Behaviors of callees are computed first and shared
// through a cache, so a call site sees what its callee can return or throw.
// Issues are filtered by nolint comments and sorted by position.
//
// Usage:
//
//	engine, err := internal.NewEngine(config.Default(), logger)
//	if err != nil {
//	    // handle error
//	}
//
//	issues, err := engine.Run(ctx, "path/to/file.go")
//	if err != nil {
//	    // handle error
//	}
//
//	for _, issue := range issues {
//	    fmt.Printf("%s: %s at %s\n", issue.Rule, issue.Message, issue.Start)
//	}
//
// This package is intended for internal use within the analyzer and should
// not be imported by external packages.
package internal
