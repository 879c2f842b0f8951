// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

package mpq

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Archive represents an MPQ archive opened for reading. The header, hash
// table, block table and live-block index are materialized eagerly at open
// time and never mutated afterwards; only the backing byte source is touched
// by subsequent reads.
type Archive struct {
	src        io.ReadSeeker
	file       *os.File // set by Open, closed by Close
	path       string
	header     *archiveHeader
	hashTable  []hashTableEntry
	blockTable []blockTableEntryEx
	liveBlocks []uint32 // block table positions with the exists flag set
	sectorSize uint32
}

// Open opens an MPQ archive file for reading.
// Supports both V1 and V2 format archives.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	archive, err := New(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	archive.file = file
	archive.path = path
	return archive, nil
}

// New parses an MPQ archive from a seekable byte source. The caller retains
// ownership of the source; it must stay readable for the life of the archive
// and Close will not release it.
func New(r io.ReadSeeker) (*Archive, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to header: %w", err)
	}

	header, err := readArchiveHeader(r)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	switch header.Magic {
	case mpqMagic:
	case mpqUserDataMagic:
		return nil, fmt.Errorf("%w: user data block", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: bad magic 0x%08X", ErrInvalidArchive, header.Magic)
	}

	if header.FormatVersion > formatVersion2 {
		return nil, fmt.Errorf("%w: format version %d", ErrUnsupported, header.FormatVersion)
	}

	if !isPowerOfTwo(header.HashTableSize) {
		return nil, fmt.Errorf("%w: hash table size %d is not a power of two",
			ErrInvalidArchive, header.HashTableSize)
	}

	archive := &Archive{
		src:        r,
		header:     header,
		sectorSize: header.sectorSize(),
	}

	if err := archive.readTables(r); err != nil {
		return nil, err
	}

	return archive, nil
}

// readTables loads and decrypts the hash and block tables, then builds the
// live-block index.
func (a *Archive) readTables(r io.ReadSeeker) error {
	h := a.header

	// Hash table
	if _, err := r.Seek(int64(h.getHashTableOffset64()), io.SeekStart); err != nil {
		return fmt.Errorf("seek to hash table: %w", err)
	}

	hashTableData := make([]uint32, h.HashTableSize*tableEntrySize/4)
	if err := readUint32Array(r, hashTableData); err != nil {
		return fmt.Errorf("read hash table: %w", err)
	}
	decryptBlock(hashTableData, hashTableKey())

	a.hashTable = make([]hashTableEntry, h.HashTableSize)
	for i := range a.hashTable {
		a.hashTable[i] = hashTableEntry{
			HashA:      hashTableData[i*4],
			HashB:      hashTableData[i*4+1],
			Locale:     uint16(hashTableData[i*4+2] & 0xFFFF),
			Platform:   uint16(hashTableData[i*4+2] >> 16),
			BlockIndex: hashTableData[i*4+3],
		}
	}

	// Block table
	if _, err := r.Seek(int64(h.getBlockTableOffset64()), io.SeekStart); err != nil {
		return fmt.Errorf("seek to block table: %w", err)
	}

	blockTableData := make([]uint32, h.BlockTableSize*tableEntrySize/4)
	if err := readUint32Array(r, blockTableData); err != nil {
		return fmt.Errorf("read block table: %w", err)
	}
	decryptBlock(blockTableData, blockTableKey())

	a.blockTable = make([]blockTableEntryEx, h.BlockTableSize)
	for i := range a.blockTable {
		a.blockTable[i] = blockTableEntryEx{
			blockTableEntry: blockTableEntry{
				FilePos:        blockTableData[i*4],
				CompressedSize: blockTableData[i*4+1],
				FileSize:       blockTableData[i*4+2],
				Flags:          blockTableData[i*4+3],
			},
		}
	}

	// Extended block table (V2 only)
	if h.FormatVersion >= formatVersion2 && h.HiBlockTableOffset64 != 0 {
		if _, err := r.Seek(int64(h.HiBlockTableOffset64), io.SeekStart); err != nil {
			return fmt.Errorf("seek to hi-block table: %w", err)
		}

		hiBlockTable := make([]uint16, h.BlockTableSize)
		if err := readUint16Array(r, hiBlockTable); err != nil {
			return fmt.Errorf("read hi-block table: %w", err)
		}

		for i := range a.blockTable {
			a.blockTable[i].FilePosHi = hiBlockTable[i]
		}
	}

	a.liveBlocks = make([]uint32, 0, h.BlockTableSize)
	for i := range a.blockTable {
		if a.blockTable[i].Flags&fileExists != 0 {
			a.liveBlocks = append(a.liveBlocks, uint32(i))
		}
	}

	return nil
}

// Close closes the archive. The backing file is only released when the
// archive was opened with Open; sources handed to New stay with the caller.
func (a *Archive) Close() error {
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// Path returns the file path the archive was opened from, or "" for
// archives parsed from a caller-owned source.
func (a *Archive) Path() string {
	return a.path
}

// FileCount returns the number of live entries in the block table.
func (a *Archive) FileCount() int {
	return len(a.liveBlocks)
}

// HasFile returns true if the archive contains the specified file.
func (a *Archive) HasFile(mpqPath string) bool {
	_, _, err := a.findFile(mpqPath)
	return err == nil
}

// ReadFile extracts a file from the archive and returns its contents.
// The mpqPath is the path within the archive (backslashes or forward
// slashes). Locale variants are not distinguished: the first probed entry
// with matching name hashes is returned.
func (a *Archive) ReadFile(mpqPath string) ([]byte, error) {
	return a.ReadFileFrom(a.src, mpqPath)
}

// ReadFileFrom is ReadFile against an explicit byte source. It allows a
// caller that shares one archive across goroutines to hand each extraction
// its own handle on the backing file.
func (a *Archive) ReadFileFrom(r io.ReadSeeker, mpqPath string) ([]byte, error) {
	_, block, err := a.findFile(mpqPath)
	if err != nil {
		return nil, err
	}
	return a.readBlock(r, block)
}

// ExtractFile extracts a file from the archive to the specified destination
// on disk.
func (a *Archive) ExtractFile(mpqPath, destPath string) error {
	data, err := a.ReadFile(mpqPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// ListFiles returns the archive paths recorded in the (listfile) special
// file. Archives without a listfile return ErrFileNotFound.
func (a *Archive) ListFiles() ([]string, error) {
	data, err := a.ReadFile("(listfile)")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.FieldsFunc(string(data), func(r rune) bool {
		return r == '\r' || r == '\n'
	}) {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// findFile looks up a file in the hash table with linear probing and
// returns its block table index and entry.
//
// The hash entry's block index is used directly as a block table position.
// An empty slot terminates the probe, a deleted slot is skipped, and a full
// traversal without a match fails.
func (a *Archive) findFile(mpqPath string) (uint32, *blockTableEntryEx, error) {
	hashA := hashString(mpqPath, hashTypeNameA)
	hashB := hashString(mpqPath, hashTypeNameB)
	startIndex := hashString(mpqPath, hashTypeTableOffset) & (a.header.HashTableSize - 1)

	for i := uint32(0); i < a.header.HashTableSize; i++ {
		idx := (startIndex + i) & (a.header.HashTableSize - 1)
		entry := &a.hashTable[idx]

		if entry.BlockIndex == hashTableEmpty {
			break
		}
		if entry.BlockIndex == hashTableDeleted {
			continue
		}
		if entry.HashA == hashA && entry.HashB == hashB {
			if entry.BlockIndex >= uint32(len(a.blockTable)) {
				return 0, nil, fmt.Errorf("%w: block index %d out of range",
					ErrInvalidArchive, entry.BlockIndex)
			}
			block := &a.blockTable[entry.BlockIndex]
			if block.Flags&fileExists != 0 {
				return entry.BlockIndex, block, nil
			}
		}
	}

	return 0, nil, fmt.Errorf("%w: %s", ErrFileNotFound, mpqPath)
}
