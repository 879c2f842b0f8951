// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

package blp

import "image"

/* =======================
   Pixel helpers
   ======================= */

// set writes an RGBA pixel directly into an image.RGBA.
func set(img *image.RGBA, x, y int, r, g, b, a uint8) {
	i := y*img.Stride + x*4
	img.Pix[i+0] = r
	img.Pix[i+1] = g
	img.Pix[i+2] = b
	img.Pix[i+3] = a
}

// rgb565 converts a 16-bit RGB565 value to 8-bit RGB.
func rgb565(c uint16) (r, g, b uint8) {
	r = uint8((c >> 11) & 0x1F)
	g = uint8((c >> 5) & 0x3F)
	b = uint8(c & 0x1F)

	// Expand to full 8-bit range
	r = (r << 3) | (r >> 2)
	g = (g << 2) | (g >> 4)
	b = (b << 3) | (b >> 2)

	return
}

/* =======================
   DXT1 palette
   ======================= */

// colorPalette builds the 4-color palette of a DXT1 block. The raw endpoint
// ordering selects the mode: c0 > c1 yields four opaque colors at thirds,
// anything else is the 1-bit-alpha layout with a midpoint and a transparent
// fourth entry.
func colorPalette(c0, c1 uint16) [4][4]uint8 {
	r0, g0, b0 := rgb565(c0)
	r1, g1, b1 := rgb565(c1)

	p := [4][4]uint8{
		{r0, g0, b0, 255},
		{r1, g1, b1, 255},
	}

	if c0 > c1 {
		p[2] = [4]uint8{third(r0, r1), third(g0, g1), third(b0, b1), 255}
		p[3] = [4]uint8{third(r1, r0), third(g1, g0), third(b1, b0), 255}
	} else {
		p[2] = [4]uint8{half(r0, r1), half(g0, g1), half(b0, b1), 255}
		p[3] = [4]uint8{0, 0, 0, 0}
	}

	return p
}

// third returns round((2a+b)/3).
func third(a, b uint8) uint8 {
	return uint8((2*int(a) + int(b) + 1) / 3)
}

// half returns round((a+b)/2).
func half(a, b uint8) uint8 {
	return uint8((int(a) + int(b) + 1) / 2)
}
