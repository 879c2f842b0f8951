// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

// Package glb splits binary glTF (GLB) containers into their JSON and
// binary chunks and decodes the descriptor fields a bundle inspector needs.
package glb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrBadGLB         = errors.New("glb: bad container")
	ErrUnsupportedGLB = errors.New("glb: unsupported version")
)

const (
	// Magic "glTF" in little-endian
	glbMagic   = 0x46546C67
	glbVersion = 2

	// Chunk types "JSON" and "BIN\x00" in little-endian
	chunkTypeJSON = 0x4E4F534A
	chunkTypeBIN  = 0x004E4942

	headerSize = 12
	chunkHeaderSize = 8
)

// Asset is a split GLB container: the raw descriptor chunk and the optional
// binary buffer chunk. Chunk padding mandated by the container (spaces for
// JSON, zeros for BIN) is preserved.
type Asset struct {
	Version uint32
	JSON    []byte
	Bin     []byte
}

// Document is the subset of the glTF descriptor this package decodes.
type Document struct {
	Asset struct {
		Version   string `json:"version"`
		Generator string `json:"generator"`
	} `json:"asset"`
	Buffers []struct {
		ByteLength int    `json:"byteLength"`
		URI        string `json:"uri"`
	} `json:"buffers"`
	Meshes []struct {
		Name string `json:"name"`
	} `json:"meshes"`
	Images []struct {
		Name     string `json:"name"`
		MimeType string `json:"mimeType"`
	} `json:"images"`
}

// Decode splits a GLB container from raw bytes.
func Decode(data []byte) (*Asset, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadGLB, len(data))
	}

	if binary.LittleEndian.Uint32(data[0:4]) != glbMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadGLB)
	}

	version := binary.LittleEndian.Uint32(data[4:8])
	if version != glbVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedGLB, version)
	}

	total := binary.LittleEndian.Uint32(data[8:12])
	if total < headerSize || total > uint32(len(data)) {
		return nil, fmt.Errorf("%w: declared length %d for %d bytes", ErrBadGLB, total, len(data))
	}

	asset := &Asset{Version: version}

	offset := uint32(headerSize)
	first := true
	for offset < total {
		if total-offset < chunkHeaderSize {
			return nil, fmt.Errorf("%w: truncated chunk header", ErrBadGLB)
		}
		length := binary.LittleEndian.Uint32(data[offset:])
		ctype := binary.LittleEndian.Uint32(data[offset+4:])
		offset += chunkHeaderSize

		if length > total-offset {
			return nil, fmt.Errorf("%w: chunk overruns container", ErrBadGLB)
		}
		chunk := data[offset : offset+length]
		offset += length

		switch ctype {
		case chunkTypeJSON:
			if first {
				asset.JSON = chunk
			}
		case chunkTypeBIN:
			if first {
				return nil, fmt.Errorf("%w: first chunk is not JSON", ErrBadGLB)
			}
			if asset.Bin == nil {
				asset.Bin = chunk
			}
		default:
			// Unknown chunk types are skipped per the container rules.
		}

		if first && ctype != chunkTypeJSON {
			return nil, fmt.Errorf("%w: first chunk is not JSON", ErrBadGLB)
		}
		first = false
	}

	if asset.JSON == nil {
		return nil, fmt.Errorf("%w: missing JSON chunk", ErrBadGLB)
	}

	return asset, nil
}

// DecodeFile loads and splits a GLB container from disk.
func DecodeFile(path string) (*Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Document decodes the JSON chunk. When a binary chunk is present and the
// descriptor's first buffer is internal (no URI), the chunk must be at
// least the declared buffer length and no more than 3 padding bytes longer.
func (a *Asset) Document() (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(a.JSON, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadGLB, err)
	}

	if a.Bin != nil && len(doc.Buffers) > 0 && doc.Buffers[0].URI == "" {
		declared := doc.Buffers[0].ByteLength
		if len(a.Bin) < declared || len(a.Bin)-declared > 3 {
			return nil, fmt.Errorf(
				"%w: binary chunk is %d bytes, buffer declares %d",
				ErrBadGLB, len(a.Bin), declared,
			)
		}
	}

	return doc, nil
}
