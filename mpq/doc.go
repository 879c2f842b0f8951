// Copyright (c) 2025 IxDay
// SPDX-License-Identifier: MIT

/*
Package mpq provides pure Go support for reading MPQ (Mo'PaQ) archives.

MPQ is an archive format created by Blizzard Entertainment, used in games like
Diablo, StarCraft, and World of Warcraft. This package reads MPQ format
versions 1 and 2, which covers games up through WoW: Wrath of the Lich King
(3.3.5a).

# Features

  - Pure Go implementation - no CGO
  - Hash and block table decryption
  - Zlib and bzip2 sector decompression
  - Special file support: (listfile), (attributes), (signature)
  - Layered archive stacks mirroring a game install's load order

# Basic Usage

	archive, err := mpq.Open("game.mpq")
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	if archive.HasFile("Data\\file.txt") {
		data, err := archive.ReadFile("Data\\file.txt")
		if err != nil {
			log.Fatal(err)
		}
		// ...
	}

An archive can also be parsed from any io.ReadSeeker with [New]; in that case
the caller owns the byte source and the archive only borrows it. Every read
performs seek+read pairs against the source, so concurrent extraction from a
single archive requires external synchronization.

# Path Conventions

MPQ archives use backslash (\) as the path separator and compare names
case-insensitively. Forward slashes are converted automatically, so both
"Data\\file.txt" and "Data/file.txt" resolve the same entry.

# Limitations

This package is a reader for the subset of MPQ used by game clients:

  - No archive creation or modification
  - No encrypted file payloads (only the table encryption is implemented)
  - No PKWare implode compression
  - No MPQ format V3/V4 (Cataclysm+) Het/Bet tables
  - Locale and platform codes are not filtered during lookup; the first
    probed entry with matching name hashes wins
*/
package mpq
