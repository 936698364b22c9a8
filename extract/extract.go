// Package extract splits raw dataset annotation files into one JSON payload
// file per entity. Loading a single entity's annotations at assembly time
// then costs one small read instead of a scan through the distribution files.
// Every extractor groups the raw annotations by entity id and writes the
// payload types defined in package model.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/corpusloom/loom/model"
)

// Extractor is implemented by every annotation extractor. Run performs the
// full extraction and reports the number of payload files written.
type Extractor interface {
	// Dataset names the dataset the annotations come from.
	Dataset() model.DatasetName

	// Annotation names the category of the extracted payload files.
	Annotation() model.AnnotationType

	// Run extracts all annotations and returns the number of files written.
	Run(ctx context.Context) (int, error)
}

// Options configures an extractor.
type Options struct {
	// Logger receives progress events. If nil, logging is disabled.
	Logger *slog.Logger
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return opts
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}
