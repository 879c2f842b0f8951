// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

// fixtureFile describes one file to place into a synthetic archive.
type fixtureFile struct {
	name  string
	data  []byte
	flags uint32 // storage flags; fileExists is added automatically
	codec byte   // compressionZlib (default) or compressionBzip2
	// rawBlob overrides the encoded payload entirely, for malformed-input
	// tests. data still supplies the declared uncompressed size.
	rawBlob []byte
}

// buildArchive assembles a complete MPQ image in memory: header, file
// payloads, then the encrypted hash and block tables.
func buildArchive(t *testing.T, version, shift uint16, hashSlots uint32, files []fixtureFile) []byte {
	t.Helper()
	require.True(t, isPowerOfTwo(hashSlots), "fixture hash table size must be a power of two")

	headerSize := uint32(headerSizeV1)
	if version >= formatVersion2 {
		headerSize = headerSizeV2
	}
	sectorSize := uint32(512) << shift

	// Encode payloads and lay out the block table.
	blobs := make([][]byte, len(files))
	blockTable := make([]blockTableEntry, len(files))
	cursor := headerSize
	for i, f := range files {
		blobs[i] = encodeFixtureBlob(t, f, sectorSize)
		blockTable[i] = blockTableEntry{
			FilePos:        cursor,
			CompressedSize: uint32(len(blobs[i])),
			FileSize:       uint32(len(f.data)),
			Flags:          f.flags | fileExists,
		}
		cursor += uint32(len(blobs[i]))
	}

	// Populate the hash table with linear probing.
	hashTable := make([]hashTableEntry, hashSlots)
	for i := range hashTable {
		hashTable[i] = hashTableEntry{
			HashA: 0xFFFFFFFF, HashB: 0xFFFFFFFF,
			Locale: 0xFFFF, Platform: 0xFFFF,
			BlockIndex: hashTableEmpty,
		}
	}
	for blockIndex, f := range files {
		start := hashString(f.name, hashTypeTableOffset) & (hashSlots - 1)
		placed := false
		for i := uint32(0); i < hashSlots; i++ {
			idx := (start + i) & (hashSlots - 1)
			if hashTable[idx].BlockIndex == hashTableEmpty || hashTable[idx].BlockIndex == hashTableDeleted {
				hashTable[idx] = hashTableEntry{
					HashA:      hashString(f.name, hashTypeNameA),
					HashB:      hashString(f.name, hashTypeNameB),
					BlockIndex: uint32(blockIndex),
				}
				placed = true
				break
			}
		}
		require.True(t, placed, "hash table full while placing %s", f.name)
	}

	hashTableOffset := cursor
	blockTableOffset := hashTableOffset + hashSlots*tableEntrySize
	archiveSize := blockTableOffset + uint32(len(files))*tableEntrySize

	var out bytes.Buffer
	header := baseHeader{
		Magic:            mpqMagic,
		HeaderSize:       headerSize,
		ArchiveSize:      archiveSize,
		FormatVersion:    version,
		SectorSizeShift:  shift,
		HashTableOffset:  hashTableOffset,
		BlockTableOffset: blockTableOffset,
		HashTableSize:    hashSlots,
		BlockTableSize:   uint32(len(files)),
	}
	require.NoError(t, binary.Write(&out, binary.LittleEndian, &header))
	if version >= formatVersion2 {
		require.NoError(t, binary.Write(&out, binary.LittleEndian, &extendedHeader{}))
	}

	for _, blob := range blobs {
		out.Write(blob)
	}

	hashWords := make([]uint32, 0, hashSlots*4)
	for _, e := range hashTable {
		hashWords = append(hashWords, e.HashA, e.HashB,
			uint32(e.Locale)|uint32(e.Platform)<<16, e.BlockIndex)
	}
	encryptBlock(hashWords, hashTableKey())
	require.NoError(t, binary.Write(&out, binary.LittleEndian, hashWords))

	blockWords := make([]uint32, 0, len(files)*4)
	for _, e := range blockTable {
		blockWords = append(blockWords, e.FilePos, e.CompressedSize, e.FileSize, e.Flags)
	}
	encryptBlock(blockWords, blockTableKey())
	require.NoError(t, binary.Write(&out, binary.LittleEndian, blockWords))

	return out.Bytes()
}

// encodeFixtureBlob produces the on-disk payload for one fixture file.
func encodeFixtureBlob(t *testing.T, f fixtureFile, sectorSize uint32) []byte {
	t.Helper()

	if f.rawBlob != nil {
		return f.rawBlob
	}
	if f.flags&fileCompress == 0 {
		return f.data
	}

	if f.flags&fileSingleUnit != 0 {
		blob := packSector(t, f.data, f.codec)
		if len(blob) >= len(f.data) {
			return f.data
		}
		return blob
	}

	numSectors := (uint32(len(f.data)) + sectorSize - 1) / sectorSize
	sectors := make([][]byte, numSectors)
	for i := uint32(0); i < numSectors; i++ {
		lo := i * sectorSize
		hi := lo + sectorSize
		if hi > uint32(len(f.data)) {
			hi = uint32(len(f.data))
		}
		stored := packSector(t, f.data[lo:hi], f.codec)
		if uint32(len(stored)) >= hi-lo {
			stored = f.data[lo:hi]
		}
		sectors[i] = stored
	}

	entries := numSectors + 1
	withCRC := f.flags&fileSectorCRC != 0
	if withCRC {
		entries++
	}

	offsets := make([]uint32, entries)
	pos := entries * 4
	for i, sector := range sectors {
		offsets[i] = pos
		pos += uint32(len(sector))
	}
	offsets[numSectors] = pos
	if withCRC {
		offsets[numSectors+1] = pos + numSectors*4
	}

	var blob bytes.Buffer
	for _, off := range offsets {
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], off)
		blob.Write(w[:])
	}
	for _, sector := range sectors {
		blob.Write(sector)
	}
	if withCRC {
		for _, sector := range sectors {
			var w [4]byte
			binary.LittleEndian.PutUint32(w[:], adler32(sector))
			blob.Write(w[:])
		}
	}
	return blob.Bytes()
}

// packSector compresses one sector and prepends its compression tag.
func packSector(t *testing.T, data []byte, codec byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	switch codec {
	case compressionBzip2:
		buf.WriteByte(compressionBzip2)
		w, err := bzip2.NewWriter(&buf, nil)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.WriteByte(compressionZlib)
		w := zlib.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	return buf.Bytes()
}

// repeatPattern builds compressible test data of the given size.
func repeatPattern(size int, pattern string) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = pattern[i%len(pattern)]
	}
	return data
}
