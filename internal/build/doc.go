// Package build runs generation passes over device files.
//
// A pass expands the given patterns (doublestar syntax, so "devices/**/*.yaml"
// works), generates every file in memory and only then writes the results.
// Any error fails the whole pass before a file is touched. Writes go through
// a temporary file and a rename; unchanged outputs are not rewritten.
//
// Watch mode repeats the pass whenever a matching file changes, debouncing
// bursts of events:
//
//	b := build.New(build.Options{OutDir: "generated", Extension: ".cpp", Function: "setup_secplus_gdo"})
//	w := build.NewWatcher(b, []string{"devices/*.yaml"}, 500*time.Millisecond)
//	err := w.Run(ctx)
package build
