// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

package mpq

import (
	"fmt"
	"strings"
)

// normalizeMpqPath normalizes a path for cross-archive lookup.
// Converts forward slashes to backslashes and upper-cases, matching MPQ's
// internal path handling (case-insensitive, backslash separators).
func normalizeMpqPath(path string) string {
	normalized := strings.ReplaceAll(path, "/", "\\")
	normalized = strings.ToUpper(normalized)
	for strings.Contains(normalized, "\\\\") {
		normalized = strings.ReplaceAll(normalized, "\\\\", "\\")
	}
	return normalized
}

// Stack is a prioritized overlay of MPQ archives, mirroring a game client's
// load order. The last archive added has the highest priority; its version
// of a file shadows every earlier one.
type Stack struct {
	archives   []*Archive
	fileMap    map[string]int // normalized filename -> archive index
	cacheBuilt bool
}

// OpenStack opens multiple MPQ archives in order of increasing priority.
func OpenStack(paths ...string) (*Stack, error) {
	stack := &Stack{fileMap: make(map[string]int)}

	for _, path := range paths {
		archive, err := Open(path)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("open archive %s: %w", path, err)
		}
		stack.archives = append(stack.archives, archive)
	}

	return stack, nil
}

// NewStack builds a stack over already-open archives. The stack takes over
// closing them.
func NewStack(archives ...*Archive) *Stack {
	return &Stack{
		archives: archives,
		fileMap:  make(map[string]int),
	}
}

// Add appends an archive with the highest priority so far.
func (s *Stack) Add(a *Archive) {
	s.archives = append(s.archives, a)
	s.cacheBuilt = false
}

// Close closes all archives in the stack.
func (s *Stack) Close() error {
	var firstErr error
	for _, archive := range s.archives {
		if err := archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HasFile returns true if any archive contains the specified file.
// Deletion markers in higher-priority archives hide lower-priority copies.
func (s *Stack) HasFile(mpqPath string) bool {
	_, _, err := s.resolve(mpqPath)
	return err == nil
}

// ReadFile reads the highest-priority version of a file.
func (s *Stack) ReadFile(mpqPath string) ([]byte, error) {
	archive, block, err := s.resolve(mpqPath)
	if err != nil {
		return nil, err
	}
	return archive.readBlock(archive.src, block)
}

// SourceOf returns the archive that supplies a file.
func (s *Stack) SourceOf(mpqPath string) (*Archive, bool) {
	archive, _, err := s.resolve(mpqPath)
	if err != nil {
		return nil, false
	}
	return archive, true
}

// ListFiles returns the union of listfiles across the stack, highest
// priority first, deduplicated by normalized path.
func (s *Stack) ListFiles() ([]string, error) {
	seen := make(map[string]struct{})
	var result []string
	for i := len(s.archives) - 1; i >= 0; i-- {
		files, err := s.archives[i].ListFiles()
		if err != nil {
			// Archives without a listfile contribute nothing.
			continue
		}
		for _, file := range files {
			key := normalizeMpqPath(file)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, file)
		}
	}
	return result, nil
}

// ArchiveCount returns the number of archives in the stack.
func (s *Stack) ArchiveCount() int {
	return len(s.archives)
}

// resolve finds the highest-priority live entry for a file. The listfile
// cache narrows the search when available; archives without listfiles fall
// back to probing each hash table newest to oldest.
func (s *Stack) resolve(mpqPath string) (*Archive, *blockTableEntryEx, error) {
	if !s.cacheBuilt {
		s.rebuildFileMap()
	}

	if idx, ok := s.fileMap[normalizeMpqPath(mpqPath)]; ok {
		archive := s.archives[idx]
		if _, block, err := archive.findFile(mpqPath); err == nil {
			if block.Flags&fileDeleteMarker != 0 {
				return nil, nil, fmt.Errorf("%w: %s (deleted)", ErrFileNotFound, mpqPath)
			}
			return archive, block, nil
		}
	}

	// Search newest to oldest
	for i := len(s.archives) - 1; i >= 0; i-- {
		archive := s.archives[i]
		if _, block, err := archive.findFile(mpqPath); err == nil {
			if block.Flags&fileDeleteMarker != 0 {
				return nil, nil, fmt.Errorf("%w: %s (deleted)", ErrFileNotFound, mpqPath)
			}
			return archive, block, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, mpqPath)
}

// rebuildFileMap repopulates the listfile cache. Highest-priority archives
// are processed first so their entries win.
func (s *Stack) rebuildFileMap() {
	s.fileMap = make(map[string]int)

	for i := len(s.archives) - 1; i >= 0; i-- {
		files, err := s.archives[i].ListFiles()
		if err != nil {
			// An archive without a listfile may shadow anything below it,
			// so lower archives are left to the newest-to-oldest probe.
			break
		}
		for _, file := range files {
			key := normalizeMpqPath(file)
			if _, exists := s.fileMap[key]; !exists {
				s.fileMap[key] = i
			}
		}
	}

	s.cacheBuilt = true
}
