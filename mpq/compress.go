// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
)

// Sector compression tag bytes. The tag is the first byte of a compressed
// sector; anything else fails the extraction.
const (
	compressionZlib  = 0x02
	compressionBzip2 = 0x03
)

// Both decompressors share the same contract: given a buffer and its
// declared uncompressed length, produce exactly that many bytes or fail.

// decompressZlib decompresses zlib-compressed sector data.
func decompressZlib(data []byte, uncompressedSize uint32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrDecompress, err)
	}
	defer r.Close()

	result := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, result); err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrDecompress, err)
	}

	return result, nil
}

// decompressBzip2 decompresses bzip2-compressed sector data.
func decompressBzip2(data []byte, uncompressedSize uint32) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", ErrDecompress, err)
	}
	defer r.Close()

	result := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, result); err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", ErrDecompress, err)
	}

	return result, nil
}
