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
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
)

// Record is one node in a flattened tree.
//
// Records are stored in pre-order, so a parent always precedes its
// children and siblings keep their original order.
type Record struct {
	Code      string  `msgpack:"code"`
	ShortDesc string  `msgpack:"short"`
	LongDesc  *string `msgpack:"long,omitempty"`
	IsLeaf    bool    `msgpack:"leaf,omitempty"`
	Expanded  bool    `msgpack:"expanded,omitempty"`
	Parent    string  `msgpack:"parent,omitempty"`
}

// Payload is the encoded unit of a snapshot.
type Payload struct {
	FormatVersion  string   `msgpack:"format_version"`
	RunID          string   `msgpack:"run_id"`
	CreatedAtMilli int64    `msgpack:"created_at"`
	NodeCount      int      `msgpack:"node_count"`
	Records        []Record `msgpack:"records"`
}

// Flatten converts the tree under root into a Payload.
//
// # Inputs
//
//   - root: Root sentinel of the tree. Must not be nil.
//   - runID: Acquisition run ID. Empty generates a random UUID.
//
// # Outputs
//
//   - *Payload: Records in pre-order, root first.
//   - error: hierarchy.ErrNilRoot, ErrNotRoot if root is not an unparented
//     node coded hierarchy.RootCode, or hierarchy.ErrEmptyShortDesc. Each
//     matches a check Tree applies on load.
func Flatten(root *hierarchy.Node, runID string) (*Payload, error) {
	if root == nil {
		return nil, hierarchy.ErrNilRoot
	}
	if root.Code != hierarchy.RootCode || !root.IsRoot() {
		return nil, fmt.Errorf("%w: got %q", ErrNotRoot, root.Code)
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	records := make([]Record, 0, 1024)
	for n := range root.All() {
		if n.ShortDesc == "" {
			return nil, fmt.Errorf("%w: %s", hierarchy.ErrEmptyShortDesc, n.Code)
		}
		rec := Record{
			Code:      n.Code,
			ShortDesc: n.ShortDesc,
			LongDesc:  n.LongDesc,
			IsLeaf:    n.IsLeaf,
			Expanded:  n.Expanded(),
		}
		if p := n.Parent(); p != nil {
			rec.Parent = p.Code
		}
		records = append(records, rec)
	}

	return &Payload{
		FormatVersion:  FormatVersion,
		RunID:          runID,
		CreatedAtMilli: time.Now().UnixMilli(),
		NodeCount:      len(records),
		Records:        records,
	}, nil
}

// Encode serializes a payload with msgpack.
func Encode(p *Payload) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(p); err != nil {
		return nil, &StorageError{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// Decode deserializes a payload and checks its format version.
//
// Returns an error wrapping ErrCorrupted if the bytes are not a payload, or
// ErrVersionMismatch if the payload was written by another format.
func Decode(data []byte) (*Payload, error) {
	var p Payload
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrCorrupted, err)
	}
	if p.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrVersionMismatch, FormatVersion, p.FormatVersion)
	}
	return &p, nil
}

// Tree rebuilds the linked node structure from the payload records.
//
// # Description
//
// The first record must be the root sentinel. Every later record must name
// a parent that appeared before it, and codes must be unique. Nothing is
// returned unless every record links successfully.
//
// # Outputs
//
//   - *hierarchy.Node: The rebuilt root.
//   - error: Wraps ErrCorrupted on any structural problem.
func (p *Payload) Tree() (*hierarchy.Node, error) {
	if len(p.Records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrCorrupted)
	}
	if p.NodeCount != len(p.Records) {
		return nil, fmt.Errorf("%w: header says %d nodes, found %d", ErrCorrupted, p.NodeCount, len(p.Records))
	}

	first := p.Records[0]
	if first.Code != hierarchy.RootCode || first.Parent != "" {
		return nil, fmt.Errorf("%w: first record %q is not the root", ErrCorrupted, first.Code)
	}

	root := hierarchy.NewRoot()
	byCode := make(map[string]*hierarchy.Node, len(p.Records))
	byCode[root.Code] = root

	for i, rec := range p.Records[1:] {
		if rec.Code == "" || rec.Parent == "" {
			return nil, fmt.Errorf("%w: record %d has no code or parent", ErrCorrupted, i+1)
		}
		if _, dup := byCode[hierarchy.NormalizeCode(rec.Code)]; dup {
			return nil, fmt.Errorf("%w: duplicate code %q", ErrCorrupted, rec.Code)
		}
		parent, ok := byCode[hierarchy.NormalizeCode(rec.Parent)]
		if !ok {
			return nil, fmt.Errorf("%w: code %q references unknown parent %q", ErrCorrupted, rec.Code, rec.Parent)
		}

		n := hierarchy.NewBranch(rec.Code, rec.ShortDesc)
		n.IsLeaf = rec.IsLeaf
		n.LongDesc = rec.LongDesc
		if rec.Expanded {
			n.Expand()
		}
		if err := parent.AddChild(n); err != nil {
			return nil, fmt.Errorf("%w: link %q: %v", ErrCorrupted, rec.Code, err)
		}
		byCode[n.Code] = n
	}

	for _, rec := range p.Records {
		if n := byCode[hierarchy.NormalizeCode(rec.Code)]; !rec.Expanded && len(n.Children()) > 0 {
			return nil, fmt.Errorf("%w: code %q has children but is not expanded", ErrCorrupted, rec.Code)
		}
	}
	return root, nil
}

// checksum returns the hex SHA256 of data.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// newManifest describes an encoded payload.
func newManifest(p *Payload, data []byte) *Manifest {
	leaves := 0
	for _, rec := range p.Records {
		if rec.IsLeaf {
			leaves++
		}
	}
	return &Manifest{
		FormatVersion:  p.FormatVersion,
		RunID:          p.RunID,
		CreatedAtMilli: p.CreatedAtMilli,
		NodeCount:      p.NodeCount,
		LeafCount:      leaves,
		Checksum:       checksum(data),
		SizeBytes:      int64(len(data)),
	}
}

// prepare flattens and encodes root for a Save.
func prepare(root *hierarchy.Node, runID string) ([]byte, *Manifest, error) {
	p, err := Flatten(root, runID)
	if err != nil {
		return nil, nil, err
	}
	data, err := Encode(p)
	if err != nil {
		return nil, nil, err
	}
	return data, newManifest(p, data), nil
}

// validate decodes and links an imported payload without keeping the tree.
func validate(data []byte) (*Payload, error) {
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if _, err := p.Tree(); err != nil {
		return nil, err
	}
	return p, nil
}

// restore verifies data against m and rebuilds the tree.
func restore(data []byte, m *Manifest) (*hierarchy.Node, error) {
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrVersionMismatch, FormatVersion, m.FormatVersion)
	}
	if checksum(data) != m.Checksum {
		return nil, ErrChecksumMismatch
	}
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return p.Tree()
}

// unavailable wraps err so callers can detect a missing or unusable snapshot.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", hierarchy.ErrSnapshotUnavailable, err)
}
