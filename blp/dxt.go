// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

package blp

import (
	"encoding/binary"
	"fmt"
	"image"
)

// DecodeDXT1 decodes a stream of 8-byte DXT1 blocks into an RGBA image.
// Both dimensions must be multiples of 4; each block covers a 4x4 tile in
// row-major order, top-left first.
func DecodeDXT1(w, h int, data []byte) (*image.RGBA, error) {
	if w <= 0 || h <= 0 || w%4 != 0 || h%4 != 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d not a multiple of 4", ErrBadBLP, w, h)
	}

	bw := w / 4
	bh := h / 4

	if len(data) < bw*bh*8 {
		return nil, fmt.Errorf(
			"%w: %d bytes of pixel data for %d blocks",
			ErrBadBLP, len(data), bw*bh,
		)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	offset := 0

	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			// Each DXT1 block is 8 bytes
			c0 := binary.LittleEndian.Uint16(data[offset:])
			c1 := binary.LittleEndian.Uint16(data[offset+2:])
			indices := binary.LittleEndian.Uint32(data[offset+4:])
			offset += 8

			colors := colorPalette(c0, c1)

			for py := 0; py < 4; py++ {
				for px := 0; px < 4; px++ {
					// selector k sits at bits [2k, 2k+1], LSB first
					i := (indices >> uint(2*(py*4+px))) & 0x03
					c := colors[i]
					set(img, bx*4+px, by*4+py, c[0], c[1], c[2], c[3])
				}
			}
		}
	}

	return img, nil
}
