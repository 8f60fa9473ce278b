// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package internal holds wire-level helpers with no public API surface:
// the envelope checksum and COBS byte-stuffing primitives.
package internal

type table [256]uint16

const ccittFalse = 0x1021

var ccittFalseTable table

func init() {
	makeReversedTable(ccittFalse, &ccittFalseTable)
}

func makeReversedTable(poly uint16, t *table) {
	width := uint16(16)
	for i := uint16(0); i < 256; i++ {
		crc := i << (width - 8)
		for j := 0; j < 8; j++ {
			if crc&(1<<(width-1)) != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
}

func updateReversed(crc uint16, t *table, p []byte) uint16 {
	for _, v := range p {
		crc = t[byte(crc>>8)^v] ^ (crc << 8)
	}
	return crc
}

// CRC16 calculates a CRC16 checksum over d: polynomial 0x1021, initial
// value 0, no bit reflection and no final XOR (the XMODEM variant).
func CRC16(d []byte) uint16 {
	return updateReversed(0, &ccittFalseTable, d)
}
