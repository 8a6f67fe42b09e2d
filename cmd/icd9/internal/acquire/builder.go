// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/logging"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
)

// DatasetReader supplies dataset rows. ReadDatasetFile is the production
// implementation.
type DatasetReader func(path string) ([]Row, error)

// Result describes a completed build.
type Result struct {
	RunID    string
	Crawl    CrawlStats
	Enrich   EnrichStats
	Nodes    int
	Leaves   int
	Duration time.Duration
}

// Builder runs a full acquisition: crawl, enrich, verify.
type Builder struct {
	config   Config
	crawler  *Crawler
	dataset  DatasetReader
	progress func(stage string)
	logger   *logging.Logger
}

// NewBuilder creates a Builder.
//
// # Inputs
//
//   - cfg: Acquisition settings.
//   - client: HTTP client for the crawler; nil uses a default client.
//   - logger: Optional; nil discards logs.
//
// # Outputs
//
//   - *Builder: Ready to Build.
//   - error: ErrInvalidConfig.
func NewBuilder(cfg Config, client HTTPClient, logger *logging.Logger) (*Builder, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	crawler, err := NewCrawler(cfg, client, logger.With("component", "crawler"))
	if err != nil {
		return nil, err
	}
	return &Builder{
		config:   cfg,
		crawler:  crawler,
		dataset:  ReadDatasetFile,
		progress: func(string) {},
		logger:   logger,
	}, nil
}

// WithDatasetReader replaces how dataset rows are read.
func (b *Builder) WithDatasetReader(r DatasetReader) *Builder {
	b.dataset = r
	return b
}

// WithProgress reports each stage of Build, and each crawl level, to fn.
func (b *Builder) WithProgress(fn func(stage string)) *Builder {
	if fn == nil {
		fn = func(string) {}
	}
	b.progress = fn
	b.crawler.OnLevel(func(depth, pages int) {
		fn(fmt.Sprintf("Crawling level %d (%d pages)", depth, pages))
	})
	return b
}

// Build acquires the full hierarchy.
//
// # Description
//
// Reads the dataset first so a missing or malformed workbook fails before
// any page is requested. Then crawls the branch structure below a new root
// sentinel, enriches it with dataset leaves, and cross-checks the index
// populated along the way against one rebuilt from the tree alone.
//
// # Inputs
//
//   - ctx: Cancels the crawl.
//
// # Outputs
//
//   - *hierarchy.Tree: The verified tree.
//   - *Result: Statistics and the run ID to record in the snapshot.
//   - error: Dataset, crawl, enrichment, or verification failure. Nothing is
//     returned on failure; there is no partial tree.
func (b *Builder) Build(ctx context.Context) (*hierarchy.Tree, *Result, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Builder.Build")
	defer span.End()

	start := time.Now()
	result := &Result{RunID: uuid.NewString()}
	span.SetAttributes(attribute.String("acquire.run_id", result.RunID))
	logger := b.logger.With("run_id", result.RunID)

	b.progress("Reading dataset")
	rows, err := b.dataset(b.config.DatasetPath)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("read dataset: %w", err)
	}
	logger.Info("dataset loaded", "rows", len(rows), "path", b.config.DatasetPath)

	root := hierarchy.NewRoot()
	index := hierarchy.NewIndex()
	if err := index.Register(root); err != nil {
		return nil, nil, err
	}

	b.progress("Crawling hierarchy")
	if result.Crawl, err = b.crawler.Crawl(ctx, root, index); err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("crawl hierarchy: %w", err)
	}
	b.progress("Applying dataset")
	if result.Enrich, err = Enrich(index, rows, logger); err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("enrich hierarchy: %w", err)
	}

	tree, err := hierarchy.NewTreeWithIndex(root, index)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("verify hierarchy: %w", err)
	}

	result.Nodes = tree.Size()
	result.Leaves = root.CountLeaves()
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("acquire.nodes", result.Nodes),
		attribute.Int("acquire.leaves", result.Leaves),
	)
	telemetry.SetSpanOK(span)
	logger.Info("acquisition complete",
		"nodes", result.Nodes,
		"leaves", result.Leaves,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return tree, result, nil
}
