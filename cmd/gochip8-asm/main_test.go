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

package main

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/lassandro/gochip8/pkg/assembler"
	"github.com/retroenv/retrogolib/assert"
)

func TestWithExt(t *testing.T) {
	assert.Equal(t, "pong.ch8", withExt("pong.asm", ".ch8"))
	assert.Equal(t, "roms/pong.c8db", withExt("roms/pong.ch8", ".c8db"))
	assert.Equal(t, "pong.ch8", withExt("pong", ".ch8"))
}

func TestReportErrors(t *testing.T) {
	const source = "CLS\n  LD V1, $100\n"

	_, errs := assembler.Assemble(strings.NewReader(source), nil)
	assert.Equal(t, 1, len(errs))

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	reportErrors(strings.NewReader(source), errs)

	lines := strings.Split(buf.String(), "\n")
	assert.True(t, strings.Contains(lines[0], "02:10"))

	// The source line is echoed and the literal underlined beneath it
	assert.True(t, strings.Contains(buf.String(), "  LD V1, $100"))
	assert.True(t, strings.Contains(buf.String(), strings.Repeat(" ", 9)+"^~~~"))
}
