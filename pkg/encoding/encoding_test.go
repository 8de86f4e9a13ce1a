// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package encoding_test

import (
	"testing"

	"github.com/lassandro/gochip8/pkg/encoding"
	"github.com/retroenv/retrogolib/assert"
)

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		Input string
		Want  uint16
		Error bool
	}{
		{Input: "0x200", Want: 0x200},
		{Input: "x2A", Want: 0x2A},
		{Input: "0XFFF", Want: 0xFFF},
		{Input: "0xFFFF", Want: 0xFFFF},
		{Input: "0x10000", Error: true},
		{Input: "200", Error: true},
		{Input: "1x20", Error: true},
		{Input: "0xZZ", Error: true},
	}

	for _, test := range tests {
		t.Run(test.Input, func(t *testing.T) {
			have, err := encoding.DecodeHex(test.Input)

			if test.Error {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, test.Want, have)
		})
	}
}

func TestDecodeInt(t *testing.T) {
	have, err := encoding.DecodeInt("#42")
	assert.NoError(t, err)
	assert.Equal(t, int32(42), have)

	have, err = encoding.DecodeInt("-7")
	assert.NoError(t, err)
	assert.Equal(t, int32(-7), have)

	// Wider than int16, still a valid unsigned word
	have, err = encoding.DecodeInt("40000")
	assert.NoError(t, err)
	assert.Equal(t, int32(40000), have)

	_, err = encoding.DecodeInt("ten")
	assert.Error(t, err)
}

func TestDecodeValue(t *testing.T) {
	have, err := encoding.DecodeValue("0x1F")
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x1F), have)

	have, err = encoding.DecodeValue("31")
	assert.NoError(t, err)
	assert.Equal(t, uint16(31), have)

	have, err = encoding.DecodeValue("40000")
	assert.NoError(t, err)
	assert.Equal(t, uint16(40000), have)

	_, err = encoding.DecodeValue("70000")
	assert.Error(t, err)

	_, err = encoding.DecodeValue("x")
	assert.Error(t, err)
}
