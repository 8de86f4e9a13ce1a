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
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/lassandro/gochip8/pkg/debugger"
	"github.com/lassandro/gochip8/pkg/host"
	"github.com/lassandro/gochip8/pkg/machine"
)

// Terminals report key presses but never releases, so a key counts as held
// for this many frames after its last byte arrives. Key repeat keeps it
// held for as long as the host key is down.
const holdFrames = 8

const (
	keyInterrupt = 0x03
	keyEscape    = 0x1B
	keyPause     = ' '
)

var termRestore *term.State

func enterRawTerm() {
	state, err := term.MakeRaw(int(os.Stdin.Fd()))

	if err != nil {
		panic(err)
	}

	termRestore = state

	// Hide the cursor and clear the screen
	os.Stdout.WriteString("\033[?25l\033[2J")
}

func exitRawTerm() {
	if termRestore == nil {
		return
	}

	os.Stdout.WriteString("\033[?25h\r\n")

	if err := term.Restore(int(os.Stdin.Fd()), termRestore); err != nil {
		panic(err)
	}

	termRestore = nil
}

type terminal struct {
	fd   int
	in   io.Reader
	out  *bufio.Writer
	held [machine.KEY_COUNT]int
	tone toner

	// Ctrl-C quits unless this is set
	interrupt func()
}

func newTerminal(tone toner) *terminal {
	return &terminal{
		fd:   int(os.Stdin.Fd()),
		out:  bufio.NewWriter(os.Stdout),
		tone: tone,
	}
}

// Reads whatever stdin has buffered without blocking
func (tm *terminal) pending() []byte {
	if tm.in != nil {
		buf := make([]byte, 64)
		n, _ := tm.in.Read(buf)
		return buf[:n]
	}

	var result []byte
	buf := make([]byte, 64)

	for {
		fds := []unix.PollFd{{Fd: int32(tm.fd), Events: unix.POLLIN}}

		if n, err := unix.Poll(fds, 0); err != nil || n == 0 {
			return result
		}

		n, err := unix.Read(tm.fd, buf)

		if err != nil || n <= 0 {
			return result
		}

		result = append(result, buf[:n]...)
	}
}

// Returns the index of the last byte of the escape sequence starting at i.
// CSI and SS3 sequences run to their final byte, anything else is an Alt
// chord covering one byte.
func skipEscape(input []byte, i int) int {
	i++

	if input[i] != '[' && input[i] != 'O' {
		return i
	}

	for i++; i < len(input); i++ {
		if input[i] >= 0x40 && input[i] <= 0x7E {
			return i
		}
	}

	return len(input) - 1
}

func (tm *terminal) Poll(keypad *[machine.KEY_COUNT]bool) host.Command {
	command := host.None

	if shouldexit {
		return host.Quit
	}

	input := tm.pending()

	for i := 0; i < len(input); i++ {
		b := input[i]

		switch {
		case b == keyInterrupt:
			if tm.interrupt == nil {
				return host.Quit
			}
			tm.interrupt()

		// A lone escape, not the start of an escape sequence
		case b == keyEscape && i == len(input)-1:
			return host.Quit

		// Arrow and function keys never reach the keypad
		case b == keyEscape:
			i = skipEscape(input, i)

		case b == keyPause:
			command = host.TogglePause

		default:
			if key, ok := keyFor(b); ok {
				tm.held[key] = holdFrames
			}
		}
	}

	for key := range tm.held {
		keypad[key] = tm.held[key] > 0

		if tm.held[key] > 0 {
			tm.held[key]--
		}
	}

	return command
}

func (tm *terminal) Present(display *machine.Display) {
	renderDisplay(tm.out, display)

	if err := tm.out.Flush(); err != nil {
		log.Println(err)
	}
}

func (tm *terminal) Tone(on bool) {
	tm.tone.Tone(on)
}

// Packs two display rows into each line using half block glyphs
func renderDisplay(w io.Writer, display *machine.Display) {
	io.WriteString(w, "\033[H")

	for y := 0; y < machine.DISPLAY_HEIGHT; y += 2 {
		for x := 0; x < machine.DISPLAY_WIDTH; x++ {
			top := display.Pixel(x, y)
			bottom := display.Pixel(x, y+1)

			switch {
			case top && bottom:
				io.WriteString(w, "█")
			case top:
				io.WriteString(w, "▀")
			case bottom:
				io.WriteString(w, "▄")
			default:
				io.WriteString(w, " ")
			}
		}

		// Raw mode turns off output post-processing
		io.WriteString(w, "\r\n")
	}
}

func runTerminal(runner *host.Runner, tone toner) error {
	tm := newTerminal(tone)
	runner.Frontend = tm

	if width, height, err := term.GetSize(tm.fd); err == nil {
		if width < machine.DISPLAY_WIDTH || height < machine.DISPLAY_HEIGHT/2 {
			log.Printf(
				"Terminal is %dx%d, the display needs %dx%d",
				width, height,
				machine.DISPLAY_WIDTH, machine.DISPLAY_HEIGHT/2,
			)
		}
	}

	enterRawTerm()
	defer exitRawTerm()

	if dbg, ok := runner.Machine.Debugger.(*debugger.Debugger); ok && debugvar {
		tm.interrupt = func() {
			dbg.Break = true
		}

		debugREPL(dbg, runner.Machine)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, unix.SIGTERM,
	)
	defer stop()

	if err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
