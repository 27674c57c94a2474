package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nerrad567/gdogen/internal/gdo"
)

// Logger defines the logging interface used by the Builder.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options controls where and how artifacts are produced.
type Options struct {
	OutDir    string // Directory for generated files
	Extension string // Output extension, e.g. ".cpp"
	Function  string // Name of the generated setup function
}

// Artifact is the generated source for one device file.
type Artifact struct {
	Source  string // Device file the artifact was generated from
	Path    string // Output file path
	Content []byte
	Units   int // Number of generation units
}

// Builder runs generation passes over a set of device files.
type Builder struct {
	opts   Options
	logger Logger
}

// New creates a Builder.
func New(opts Options) *Builder {
	return &Builder{opts: opts, logger: noopLogger{}}
}

// SetLogger sets the logger for the builder.
func (b *Builder) SetLogger(logger Logger) {
	b.logger = logger
}

// ExpandPatterns resolves file patterns, including ** wildcards, to a
// sorted, de-duplicated list of files. Every pattern must match at least
// one file.
func ExpandPatterns(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: no patterns given", ErrNoFiles)
	}

	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoFiles, pattern)
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Build generates every device file matched by patterns. Generation
// happens in memory; the first error aborts the pass and no artifact is
// returned, so a failed build never leaves partial output behind.
// Files that declare nothing for secplus_gdo are skipped.
func (b *Builder) Build(ctx context.Context, patterns []string) ([]Artifact, error) {
	files, err := ExpandPatterns(patterns)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]string, len(files))
	artifacts := make([]Artifact, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		artifact, ok, err := b.generate(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if !ok {
			continue
		}

		if prev, dup := outputs[artifact.Path]; dup {
			return nil, fmt.Errorf("%w: %s and %s both generate %s", ErrOutputCollision, prev, file, artifact.Path)
		}
		outputs[artifact.Path] = file
		artifacts = append(artifacts, artifact)
	}

	b.logger.Info("build complete", "files", len(files), "artifacts", len(artifacts))
	return artifacts, nil
}

func (b *Builder) generate(file string) (Artifact, bool, error) {
	doc, err := gdo.LoadFile(file)
	if err != nil {
		return Artifact{}, false, err
	}
	for _, path := range doc.Skipped {
		b.logger.Debug("entry belongs to another platform", "file", file, "path", path)
	}
	if doc.Empty() {
		b.logger.Debug("no secplus_gdo configuration", "file", file)
		return Artifact{}, false, nil
	}

	doc.Source = filepath.ToSlash(file)
	prog, err := doc.Program(b.opts.Function)
	if err != nil {
		return Artifact{}, false, err
	}

	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	units := len(prog.Units())
	b.logger.Debug("generated", "file", file, "units", units)

	return Artifact{
		Source:  file,
		Path:    filepath.Join(b.opts.OutDir, base+b.opts.Extension),
		Content: []byte(prog.Render()),
		Units:   units,
	}, true, nil
}

// Write stores artifacts on disk. Each file is written to a temporary file
// and renamed into place; files whose content is unchanged are left alone.
// Returns the number of files written.
func (b *Builder) Write(artifacts []Artifact) (int, error) {
	if len(artifacts) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(b.opts.OutDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}

	written := 0
	for _, a := range artifacts {
		existing, err := os.ReadFile(a.Path)
		if err == nil && bytes.Equal(existing, a.Content) {
			b.logger.Debug("unchanged", "path", a.Path)
			continue
		}

		if err := writeAtomic(a.Path, a.Content); err != nil {
			return written, fmt.Errorf("writing %s: %w", a.Path, err)
		}
		b.logger.Info("wrote", "path", a.Path, "source", a.Source, "units", a.Units)
		written++
	}
	return written, nil
}

func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
