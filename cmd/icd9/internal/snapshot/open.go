// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"fmt"

	"github.com/AleutianAI/icd9cms/pkg/logging"
)

// Config selects and configures the local snapshot backend.
type Config struct {
	// Backend is "file" or "badger".
	Backend string `yaml:"backend" validate:"oneof=file badger"`

	// Dir is the snapshot directory (file) or database directory (badger).
	Dir string `yaml:"dir" validate:"required"`

	// SyncWrites fsyncs badger commits. Ignored by the file backend.
	SyncWrites bool `yaml:"sync_writes"`
}

// Open returns the Store selected by cfg.Backend.
func Open(cfg Config, logger *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.Dir, logger), nil
	case BackendBadger:
		bcfg := BadgerConfig{Path: cfg.Dir, SyncWrites: cfg.SyncWrites}
		if logger != nil {
			bcfg.Logger = logger.Slog().With("component", "badger")
		}
		return OpenBadgerStore(bcfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
