// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"fmt"
	"io"
)

// readBlock reads the full payload of a block entry: exactly FileSize bytes,
// decompressed sector by sector.
//
// On-disk layout of a sectorized compressed file: a vector of little-endian
// uint32 offsets relative to the block's file position (one per sector plus
// the end offset, plus one more when sector checksums are present), followed
// by the sector payloads back to back. Uncompressed sectorized files carry
// no vector; their offsets are synthesized from the sector size.
func (a *Archive) readBlock(r io.ReadSeeker, block *blockTableEntryEx) ([]byte, error) {
	if block.Flags&fileEncrypted != 0 {
		return nil, fmt.Errorf("%w: encrypted file payload", ErrUnsupported)
	}
	if block.Flags&fileCompressMask != 0 && block.Flags&fileCompress == 0 {
		// Some compression applied, but not the tag-dispatched kind.
		return nil, fmt.Errorf("%w: PKWare implode compression", ErrUnsupported)
	}

	if block.FileSize == 0 {
		return []byte{}, nil
	}

	filePos := block.getFilePos64()
	compressed := block.Flags&fileCompress != 0

	if block.Flags&fileSingleUnit != 0 {
		if !compressed {
			return readRange(r, filePos, block.FileSize)
		}
		blob, err := readRange(r, filePos, block.CompressedSize)
		if err != nil {
			return nil, err
		}
		return decodeSector(blob, block.FileSize)
	}

	numSectors := (block.FileSize + a.sectorSize - 1) / a.sectorSize

	offsets, err := a.sectorOffsets(r, block, numSectors)
	if err != nil {
		return nil, err
	}

	checksums, err := a.sectorChecksums(r, block, offsets, numSectors)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, block.FileSize)

	for i := uint32(0); i < numSectors; i++ {
		start, end := offsets[i], offsets[i+1]
		if end < start || end > block.CompressedSize {
			return nil, fmt.Errorf("%w: sector %d offsets %d-%d", ErrInvalidArchive, i, start, end)
		}

		sector, err := readRange(r, filePos+uint64(start), end-start)
		if err != nil {
			return nil, err
		}

		if checksums != nil && checksums[i] != 0 && adler32(sector) != checksums[i] {
			return nil, fmt.Errorf("%w: sector %d", ErrSectorChecksum, i)
		}

		expected := a.sectorSize
		if i == numSectors-1 {
			expected = block.FileSize - i*a.sectorSize
		}

		if !compressed {
			if uint32(len(sector)) != expected {
				return nil, fmt.Errorf("%w: sector %d is %d bytes, want %d",
					ErrInvalidArchive, i, len(sector), expected)
			}
			result = append(result, sector...)
			continue
		}

		decoded, err := decodeSector(sector, expected)
		if err != nil {
			return nil, fmt.Errorf("sector %d: %w", i, err)
		}
		result = append(result, decoded...)
	}

	return result, nil
}

// sectorOffsets returns the sector offset vector for a sectorized block:
// numSectors+1 entries, where entry k is the start of sector k relative to
// the block's file position and entry numSectors is the end of the final
// sector. Compressed blocks store the vector on disk; when the sector-CRC
// flag is set it has numSectors+2 entries, the last one being the end of
// the checksum region. Uncompressed blocks synthesize it.
func (a *Archive) sectorOffsets(r io.ReadSeeker, block *blockTableEntryEx, numSectors uint32) ([]uint32, error) {
	if block.Flags&fileCompress == 0 {
		offsets := make([]uint32, numSectors+1)
		for i := uint32(0); i < numSectors; i++ {
			offsets[i] = i * a.sectorSize
		}
		offsets[numSectors] = block.CompressedSize
		return offsets, nil
	}

	entries := numSectors + 1
	if block.Flags&fileSectorCRC != 0 {
		entries++
	}

	raw, err := readRange(r, block.getFilePos64(), entries*4)
	if err != nil {
		return nil, err
	}

	offsets := make([]uint32, entries)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return offsets, nil
}

// sectorChecksums reads the trailing checksum region of a block whose
// sector-CRC flag is set: one Adler-32 of each stored sector, located
// between the end of the last data sector and the final offset entry.
// Returns nil when no well-formed checksum region is present.
func (a *Archive) sectorChecksums(r io.ReadSeeker, block *blockTableEntryEx, offsets []uint32, numSectors uint32) ([]uint32, error) {
	if block.Flags&fileSectorCRC == 0 || block.Flags&fileCompress == 0 {
		return nil, nil
	}
	if uint32(len(offsets)) != numSectors+2 {
		return nil, nil
	}

	start, end := offsets[numSectors], offsets[numSectors+1]
	if end < start || end > block.CompressedSize || end-start != numSectors*4 {
		// Producers sometimes set the flag without writing the region;
		// treat it as absent rather than malformed.
		return nil, nil
	}

	raw, err := readRange(r, block.getFilePos64()+uint64(start), end-start)
	if err != nil {
		return nil, err
	}

	checksums := make([]uint32, numSectors)
	for i := range checksums {
		checksums[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return checksums, nil
}

// decodeSector decodes one stored sector into expected bytes. A sector
// stored at exactly its uncompressed length passes through unchanged (the
// producer skipped compression when it did not help); otherwise the leading
// tag byte selects the codec.
func decodeSector(data []byte, expected uint32) ([]byte, error) {
	if uint32(len(data)) == expected {
		out := make([]byte, expected)
		copy(out, data)
		return out, nil
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty sector", ErrDecompress)
	}

	switch tag := data[0]; tag {
	case compressionZlib:
		return decompressZlib(data[1:], expected)
	case compressionBzip2:
		return decompressBzip2(data[1:], expected)
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidCompressionTag, tag)
	}
}

// readRange reads length bytes at the given absolute offset.
func readRange(r io.ReadSeeker, offset uint64, length uint32) ([]byte, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to 0x%X: %w", offset, err)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read %d bytes at 0x%X: %w", length, offset, err)
	}
	return data, nil
}
