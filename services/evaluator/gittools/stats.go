// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gittools

import (
	"fmt"

	"github.com/sourcegraph/go-diff/diff"
)

// Stats summarizes a unified diff.
type Stats struct {
	// Files is the number of files the diff touches.
	Files int

	// Insertions counts added lines, including the added side of
	// changed hunks.
	Insertions int

	// Deletions counts removed lines, including the removed side of
	// changed hunks.
	Deletions int
}

// DiffStats parses a unified diff and totals its line changes.
//
// Description:
//
//	An empty patch yields zero stats rather than an error; root
//	commits with no parent and empty commits both produce empty
//	patches.
func DiffStats(patch string) (Stats, error) {
	if patch == "" {
		return Stats{}, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return Stats{}, fmt.Errorf("parse diff: %w", err)
	}

	var stats Stats
	stats.Files = len(fileDiffs)
	for _, fd := range fileDiffs {
		s := fd.Stat()
		stats.Insertions += int(s.Added + s.Changed)
		stats.Deletions += int(s.Deleted + s.Changed)
	}
	return stats, nil
}

// truncateMiddle keeps the head and tail of oversized output, matching
// how diffs are clipped before reaching the model.
func truncateMiddle(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}

	keep := maxBytes/2 - 100
	if keep < 0 {
		keep = maxBytes / 2
	}
	return s[:keep] +
		fmt.Sprintf("\n\n... [TRUNCATED %d characters] ...\n\n", len(s)-maxBytes) +
		s[len(s)-keep:]
}
