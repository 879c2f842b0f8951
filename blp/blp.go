// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

// Package blp decodes BLP2 texture files into RGBA images.
// Only the DXT1-encoded variant is supported, at mip level 0.
package blp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
)

var (
	ErrBadBLP         = errors.New("blp: bad file")
	ErrUnsupportedBLP = errors.New("blp: unsupported format")
)

// headerSize is the fixed BLP2 prefix read by this decoder:
// 4 magic + 16 fixed fields + 64 mip offsets + 64 mip sizes.
// Paletted files carry 1024 more bytes of palette, which DXT1 never uses.
const headerSize = 148

// BLP2 header layout
type blpHeader struct {
	Magic         [4]byte
	Version       uint32
	ColorEncoding uint8
	AlphaDepth    uint8
	Format        uint8
	Mips          uint8
	Width         uint32
	Height        uint32
	Offsets       [16]uint32
	Sizes         [16]uint32
}

/* =======================
   Public API
   ======================= */

// Decode decodes a BLP2 file from raw bytes.
func Decode(data []byte) (*image.RGBA, error) {
	return decodeBLP(data, "")
}

// DecodeFile loads and decodes a BLP2 file from disk.
func DecodeFile(path string) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeBLP(data, path)
}

// DecodeFS loads and decodes a BLP2 file from an fs.FS.
func DecodeFS(fsys fs.FS, path string) (*image.RGBA, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return decodeBLP(data, path)
}

/* =======================
   Core decoder
   ======================= */

func decodeBLP(data []byte, path string) (*image.RGBA, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, wrapErr(err, path)
	}

	// color encoding 2 with preferred format 0 is DXT1; everything else
	// (DXT3/5, paletted, raw ARGB) is out of scope.
	if h.ColorEncoding != 2 || h.Format != 0 {
		return nil, wrapErr(fmt.Errorf(
			"%w: color encoding %d, format %d",
			ErrUnsupportedBLP, h.ColorEncoding, h.Format,
		), path)
	}
	if h.AlphaDepth > 1 {
		return nil, wrapErr(fmt.Errorf(
			"%w: DXT1 with alpha depth %d",
			ErrUnsupportedBLP, h.AlphaDepth,
		), path)
	}

	// Only mip level 0 is decoded.
	off := int(h.Offsets[0])
	sz := int(h.Sizes[0])

	if off <= 0 || sz <= 0 || off+sz > len(data) {
		return nil, wrapErr(fmt.Errorf("%w: mip 0 out of bounds", ErrBadBLP), path)
	}

	img, err := DecodeDXT1(int(h.Width), int(h.Height), data[off:off+sz])
	if err != nil {
		return nil, wrapErr(err, path)
	}
	return img, nil
}

/* =======================
   Header parsing
   ======================= */

func parseHeader(b []byte) (*blpHeader, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf(
			"%w: file too small (%d bytes)",
			ErrBadBLP, len(b),
		)
	}

	h := &blpHeader{}

	copy(h.Magic[:], b[0:4])
	if string(h.Magic[:]) != "BLP2" {
		return nil, fmt.Errorf(
			"%w: bad magic %q",
			ErrBadBLP, h.Magic,
		)
	}

	h.Version = binary.LittleEndian.Uint32(b[4:8])
	h.ColorEncoding = b[8]
	h.AlphaDepth = b[9]
	h.Format = b[10]
	h.Mips = b[11]
	h.Width = binary.LittleEndian.Uint32(b[12:16])
	h.Height = binary.LittleEndian.Uint32(b[16:20])

	o := 20
	for i := 0; i < 16; i++ {
		h.Offsets[i] = binary.LittleEndian.Uint32(b[o:])
		o += 4
	}
	for i := 0; i < 16; i++ {
		h.Sizes[i] = binary.LittleEndian.Uint32(b[o:])
		o += 4
	}

	return h, nil
}

/* =======================
   Utilities
   ======================= */

func wrapErr(err error, path string) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, path)
}
