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
	"encoding/gob"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/lassandro/gochip8/pkg/assembler"
	"github.com/lassandro/gochip8/pkg/debugger"
	"github.com/lassandro/gochip8/pkg/host"
	"github.com/lassandro/gochip8/pkg/machine"
	"github.com/retroenv/retrogolib/buildinfo"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

var helpvar bool
var debugvar bool
var mutevar bool
var verbosevar bool
var versionvar bool
var frontendvar string
var speedvar int
var scalevar int
var shouldexit bool

const usage = "gochip8 [-frontend term|window] [-speed #] [-debug] filename"

func init() {
	exe, _ := os.Executable()
	log.SetFlags(0)
	log.SetPrefix(fmt.Sprintf("%s: ", filepath.Base(exe)))
	log.SetOutput(os.Stderr)
}

func init() {
	flag.BoolVar(&helpvar, "help", false, "Displays command usage")
	flag.BoolVar(&debugvar, "debug", false, "Runs the machine in a debug CLI")
	flag.BoolVar(&mutevar, "mute", false, "Disables the sound timer tone")
	flag.BoolVar(&verbosevar, "v", false, "Logs every unrecognized opcode")
	flag.BoolVar(&versionvar, "version", false, "Displays the version")
	flag.StringVar(
		&frontendvar, "frontend", "term",
		"Selects the display and keyboard: 'term' or 'window'",
	)
	flag.IntVar(
		&speedvar, "speed", host.DefaultStepsPerFrame,
		"Instructions executed per 60Hz frame",
	)
	flag.IntVar(&scalevar, "scale", 10, "Window pixels per display pixel")
}

// Loads the symbol table written by gochip8-asm -debug, and the source it
// names, when they sit beside the program. Returns the opened source file.
func loadSymbols(dbg *debugger.Debugger, program string) *os.File {
	filename := strings.TrimSuffix(program, filepath.Ext(program)) + ".c8db"

	file, err := os.Open(filename)

	if err != nil {
		// Most programs are not assembled locally
		if !errors.Is(err, fs.ErrNotExist) {
			log.Println("Error loading symbol file")
			log.Println(err)
		}

		return nil
	}

	defer file.Close()

	var symtable assembler.SymTable

	if err := gob.NewDecoder(file).Decode(&symtable); err != nil {
		log.Println("Error loading symbol file")
		log.Println(err)
		return nil
	}

	dbg.SymTable = &symtable

	if symtable.Source == "" {
		return nil
	}

	source, err := os.Open(symtable.Source)

	if err != nil {
		log.Println("Error loading source file")
		log.Println(err)
		return nil
	}

	dbg.Source = source
	return source
}

func gochip8() int {
	flag.Parse()

	if helpvar {
		fmt.Println(usage)
		flag.PrintDefaults()
		return 0
	}

	if versionvar {
		fmt.Println(buildinfo.Version(version, commit, date))
		return 0
	}

	args := flag.Args()

	if len(args) != 1 {
		log.Println(usage)
		return 1
	}

	if debugvar && frontendvar != "term" {
		log.Println("-debug requires the term frontend")
		return 1
	}

	file, err := os.Open(args[0])

	if err != nil {
		log.Println(err)
		return 1
	}

	defer file.Close()

	var mc machine.Machine

	if err := mc.LoadBin(file); err != nil {
		log.Println(err)
		return 1
	}

	if debugvar || verbosevar {
		var dbg debugger.Debugger
		dbg.Binary = append([]byte(nil), mc.State.Memory[machine.MEMSPACE_PROGRAM:]...)

		if verbosevar {
			dbg.HandleUnknown = handleUnknown
		}

		if debugvar {
			dbg.HandleBreak = handleBreak
			dbg.HandleRead = handleRead
			dbg.HandleWrite = handleWrite

			if source := loadSymbols(&dbg, args[0]); source != nil {
				defer source.Close()
			}
		}

		mc.Debugger = &dbg
	}

	var tone toner = silence{}

	if !mutevar {
		if beep, err := newBeeper(); err != nil {
			log.Println("Audio unavailable:", err)
		} else {
			defer beep.Close()
			tone = beep
		}
	}

	runner := &host.Runner{
		Machine:       &mc,
		StepsPerFrame: speedvar,
		OnFault: func(err error) {
			log.Println(err)
			if debugvar {
				mc.Debugger.(*debugger.Debugger).PrintDisasm(
					&mc.State, mc.State.Program-2, 4,
				)
			}
		},
	}

	switch frontendvar {
	case "term":
		err = runTerminal(runner, tone)
	case "window":
		err = runWindow(runner, tone, scalevar)
	default:
		log.Printf("Unknown frontend '%s'", frontendvar)
		return 1
	}

	if mc.State.Unknown > 0 {
		log.Printf("%d unrecognized opcodes ignored", mc.State.Unknown)
	}

	if err != nil {
		// Faults were already reported through OnFault
		if mc.State.RunState != machine.Halted {
			log.Println(err)
		}

		return 1
	}

	return 0
}

func main() {
	os.Exit(gochip8())
}
