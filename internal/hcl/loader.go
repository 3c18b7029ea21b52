// Package hcl is the HCL-specific implementation of the config.Loader
// interface. It discovers .hcl files under the given paths, decodes task
// and settings blocks, and translates them into the format-agnostic
// config model.
package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/taskgridgo/internal/config"
	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/fsutil"
)

// Loader parses HCL grid files.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load parses every .hcl file reachable from the given paths and merges
// the blocks into one model. Task blocks accumulate across files; at most
// one settings block is allowed per grid.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := l.findGridFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found under %v", paths)
	}
	logger.Debug("Discovered grid files.", "count", len(files))

	model := &config.Model{}
	parser := hclparse.NewParser()
	settingsSeen := ""

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root gridFile
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, block := range root.Tasks {
			t, err := l.translateTask(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Tasks = append(model.Tasks, t)
		}

		if root.Settings != nil {
			if settingsSeen != "" {
				return nil, fmt.Errorf("duplicate settings block in %s (already defined in %s)", file, settingsSeen)
			}
			settingsSeen = file
			s, err := l.translateSettings(root.Settings)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Settings = s
		}
	}

	model.Settings.Normalize()
	logger.Debug("Grid model assembled.", "tasks", len(model.Tasks))
	return model, nil
}

// findGridFiles expands each path: directories are searched recursively
// for .hcl files, plain files are taken as-is.
func (l *Loader) findGridFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("grid path %q: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := fsutil.FindFilesByExtension(p, ".hcl")
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}
