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

package machine_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/lassandro/gochip8/pkg/machine"
)

type testMachineState struct {
	Registers    [16]uint8
	Program      uint16
	Index        uint16
	Stack        [12]uint16
	StackPointer uint8
	Delay        uint8
	Sound        uint8
	Keypad       [16]bool
	Memory       map[uint16]byte
}

type testCase struct {
	Name   string
	Steps  uint
	Input  testMachineState
	Output testMachineState
}

func newTestMachine(input *testMachineState) *machine.Machine {
	var mc machine.Machine

	mc.State.Reset()
	mc.State.Registers = input.Registers
	mc.State.Program = input.Program
	mc.State.Index = input.Index
	mc.State.Stack = input.Stack
	mc.State.StackPointer = input.StackPointer
	mc.State.Delay = input.Delay
	mc.State.Sound = input.Sound
	mc.State.Keypad = input.Keypad

	for addr, value := range input.Memory {
		mc.State.Memory[addr] = value
	}

	return &mc
}

func testMachineSuccess(t *testing.T, test *testCase) {
	if test.Input.Memory == nil {
		panic("No memory map provided")
	}

	mc := newTestMachine(&test.Input)

	if test.Steps == 0 {
		test.Steps = 1
	}

	for i := uint(0); i < test.Steps; i++ {
		if err := mc.Step(); err != nil {
			t.Fatalf("Unexpected error on step %d: %v", i, err)
		}
	}

	for i := 0; i < 16; i++ {
		want := test.Output.Registers[i]
		have := mc.State.Registers[i]
		if have != want {
			t.Errorf(
				"Register mismatch"+
					"\nwant:%#02x (test.Output.Registers[%X])\nhave:%#02x",
				want,
				i,
				have,
			)
		}
	}

	if mc.State.Program != test.Output.Program {
		t.Errorf(
			"Program counter mismatch"+
				"\nwant:%#04x (test.Output.Program)\nhave:%#04x",
			test.Output.Program,
			mc.State.Program,
		)
	}

	if mc.State.Index != test.Output.Index {
		t.Errorf(
			"Index register mismatch"+
				"\nwant:%#04x (test.Output.Index)\nhave:%#04x",
			test.Output.Index,
			mc.State.Index,
		)
	}

	if mc.State.StackPointer != test.Output.StackPointer {
		t.Errorf(
			"Stack pointer mismatch"+
				"\nwant:%d (test.Output.StackPointer)\nhave:%d",
			test.Output.StackPointer,
			mc.State.StackPointer,
		)
	}

	for i := uint8(0); i < test.Output.StackPointer; i++ {
		if have, want := mc.State.Stack[i], test.Output.Stack[i]; have != want {
			t.Errorf(
				"Stack mismatch"+
					"\nwant:%#04x (test.Output.Stack[%d])\nhave:%#04x",
				want,
				i,
				have,
			)
		}
	}

	if mc.State.Delay != test.Output.Delay {
		t.Errorf(
			"Delay timer mismatch"+
				"\nwant:%d (test.Output.Delay)\nhave:%d",
			test.Output.Delay,
			mc.State.Delay,
		)
	}

	if mc.State.Sound != test.Output.Sound {
		t.Errorf(
			"Sound timer mismatch"+
				"\nwant:%d (test.Output.Sound)\nhave:%d",
			test.Output.Sound,
			mc.State.Sound,
		)
	}

	for i, value := range mc.State.Memory {
		input, expectingInput := test.Input.Memory[uint16(i)]
		output, expectingOutput := test.Output.Memory[uint16(i)]

		var font byte
		if i < len(machine.Font) {
			font = machine.Font[i]
		}

		if expectingOutput {
			// Value was supposed to change
			if value != output {
				t.Fatalf(
					"Memory value mismatch"+
						"\nwant:%#02x (test.Output.Memory[%#04x])\nhave:%#02x",
					output,
					i,
					value,
				)
			}
		} else if expectingInput {
			// Value was supposed to remain
			if value != input {
				t.Fatalf(
					"Memory value mismatch"+
						"\nwant:%#02x (test.Input.Memory[%#04x])\nhave:%#02x",
					input,
					i,
					value,
				)
			}
		} else if value != font {
			t.Fatalf(
				"Memory unexpectedly changed"+
					"\nwant:%#02x (memory[%#04x])\nhave:%#02x",
				font,
				i,
				value,
			)
		}
	}
}

func testSuccess(t *testing.T, tests []testCase) {
	t.Run("Success", func(t *testing.T) {
		for _, test := range tests {
			t.Run(test.Name, func(t *testing.T) {
				testMachineSuccess(t, &test)
			})
		}
	})
}

// CLS  |0000    |0000   |1110   |0000   | Clear display
// RET  |0000    |0000   |1110   |1110   | Return from subroutine
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestSys(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "RET",
			Input: testMachineState{
				Program:      0x0300,
				Stack:        [12]uint16{0: 0x0202, 1: 0x0246},
				StackPointer: 2,
				Memory: map[uint16]byte{
					0x0300: 0x00, 0x0301: 0xEE,
				},
			},
			Output: testMachineState{
				Program:      0x0246,
				Stack:        [12]uint16{0: 0x0202},
				StackPointer: 1,
			},
		},
		{
			Name: "SYS Ignored",
			Input: testMachineState{
				Program: 0x0200,
				Memory: map[uint16]byte{
					0x0200: 0x01, 0x0201: 0x23,
				},
			},
			Output: testMachineState{
				Program: 0x0202,
			},
		},
	})

	t.Run("CLS", func(t *testing.T) {
		mc := newTestMachine(&testMachineState{
			Program: 0x0200,
			Memory: map[uint16]byte{
				0x0200: 0x00, 0x0201: 0xE0,
			},
		})

		for i := range mc.State.Display {
			mc.State.Display[i] = i%3 == 0
		}

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		for i, pixel := range mc.State.Display {
			if pixel {
				t.Fatalf("Pixel %d still set after CLS", i)
			}
		}

		if !mc.State.Draw {
			t.Error("Draw flag not set after CLS")
		}
	})
}

// JP   |0001    |nnn                    | Jump
// JP   |1011    |nnn                    | Jump to V0 + nnn
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestJump(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "JP",
			Input: testMachineState{
				Program: 0x0200,
				Memory: map[uint16]byte{
					0x0200: 0x1A, 0x0201: 0xBC,
				},
			},
			Output: testMachineState{
				Program: 0x0ABC,
			},
		},
		{
			Name: "JP V0",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{0: 0x10},
				Memory: map[uint16]byte{
					0x0200: 0xB3, 0x0201: 0x00,
				},
			},
			Output: testMachineState{
				Program:   0x0310,
				Registers: [16]uint8{0: 0x10},
			},
		},
		{
			Name: "JP V0 Past 12 Bits",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{0: 0xFF},
				Memory: map[uint16]byte{
					0x0200: 0xBF, 0x0201: 0xFF,
				},
			},
			Output: testMachineState{
				Program:   0x10FE,
				Registers: [16]uint8{0: 0xFF},
			},
		},
	})
}

// CALL |0010    |nnn                    | Call subroutine
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestCall(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "CALL",
			Input: testMachineState{
				Program: 0x0200,
				Memory: map[uint16]byte{
					0x0200: 0x23, 0x0201: 0x00,
				},
			},
			Output: testMachineState{
				Program:      0x0300,
				Stack:        [12]uint16{0: 0x0202},
				StackPointer: 1,
			},
		},
		{
			Name:  "CALL Then RET",
			Steps: 2,
			Input: testMachineState{
				Program: 0x0200,
				Memory: map[uint16]byte{
					0x0200: 0x23, 0x0201: 0x00,
					0x0300: 0x00, 0x0301: 0xEE,
				},
			},
			Output: testMachineState{
				Program:      0x0202,
				Stack:        [12]uint16{0: 0x0202},
				StackPointer: 0,
			},
		},
		{
			Name: "CALL Last Slot",
			Input: testMachineState{
				Program:      0x0200,
				StackPointer: 11,
				Memory: map[uint16]byte{
					0x0200: 0x24, 0x0201: 0x00,
				},
			},
			Output: testMachineState{
				Program:      0x0400,
				Stack:        [12]uint16{11: 0x0202},
				StackPointer: 12,
			},
		},
	})
}

func TestStackFaults(t *testing.T) {
	tests := []struct {
		Name  string
		Input testMachineState
		Want  error
	}{
		{
			Name: "Overflow",
			Input: testMachineState{
				Program:      0x0200,
				StackPointer: 12,
				Memory: map[uint16]byte{
					0x0200: 0x23, 0x0201: 0x00,
				},
			},
			Want: machine.ErrStackOverflow,
		},
		{
			Name: "Underflow",
			Input: testMachineState{
				Program: 0x0200,
				Memory: map[uint16]byte{
					0x0200: 0x00, 0x0201: 0xEE,
				},
			},
			Want: machine.ErrStackUnderflow,
		},
		{
			Name: "Fetch Past Memory",
			Input: testMachineState{
				Program: 0x0FFF,
				Memory:  map[uint16]byte{},
			},
			Want: machine.ErrProgramCounter,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			mc := newTestMachine(&test.Input)

			err := mc.Step()

			if !errors.Is(err, test.Want) {
				t.Fatalf("Error mismatch\nwant:%v\nhave:%v", test.Want, err)
			}

			if mc.State.RunState != machine.Halted {
				t.Errorf(
					"Run state mismatch\nwant:%s\nhave:%s",
					machine.Halted,
					mc.State.RunState,
				)
			}

			if mc.State.StackPointer != test.Input.StackPointer {
				t.Errorf(
					"Stack pointer moved\nwant:%d\nhave:%d",
					test.Input.StackPointer,
					mc.State.StackPointer,
				)
			}
		})
	}
}

// SE   |0011    |x      |nn             | Skip if Vx == nn
// SNE  |0100    |x      |nn             | Skip if Vx != nn
// SE   |0101    |x      |y      |0000   | Skip if Vx == Vy
// SNE  |1001    |x      |y      |0000   | Skip if Vx != Vy
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestSkip(t *testing.T) {
	skip := func(name string, hi, lo byte, regs [16]uint8, taken bool) testCase {
		out := uint16(0x0202)
		if taken {
			out = 0x0204
		}

		return testCase{
			Name: name,
			Input: testMachineState{
				Program:   0x0200,
				Registers: regs,
				Memory: map[uint16]byte{
					0x0200: hi, 0x0201: lo,
				},
			},
			Output: testMachineState{
				Program:   out,
				Registers: regs,
			},
		}
	}

	testSuccess(t, []testCase{
		skip("SE Byte Taken", 0x34, 0x42, [16]uint8{4: 0x42}, true),
		skip("SE Byte Not Taken", 0x34, 0x42, [16]uint8{4: 0x41}, false),
		skip("SNE Byte Taken", 0x44, 0x42, [16]uint8{4: 0x41}, true),
		skip("SNE Byte Not Taken", 0x44, 0x42, [16]uint8{4: 0x42}, false),
		skip("SE Reg Taken", 0x51, 0x20, [16]uint8{1: 7, 2: 7}, true),
		skip("SE Reg Not Taken", 0x51, 0x20, [16]uint8{1: 7, 2: 8}, false),
		skip("SE Reg Bad Nibble", 0x51, 0x21, [16]uint8{1: 7, 2: 7}, false),
		skip("SNE Reg Taken", 0x91, 0x20, [16]uint8{1: 7, 2: 8}, true),
		skip("SNE Reg Not Taken", 0x91, 0x20, [16]uint8{1: 7, 2: 7}, false),
	})
}

// SKP  |1110    |x      |1001   |1110   | Skip if key Vx is held
// SKNP |1110    |x      |1010   |0001   | Skip if key Vx is not held
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestKeySkip(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "SKP Held",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{3: 0xB},
				Keypad:    [16]bool{0xB: true},
				Memory: map[uint16]byte{
					0x0200: 0xE3, 0x0201: 0x9E,
				},
			},
			Output: testMachineState{
				Program:   0x0204,
				Registers: [16]uint8{3: 0xB},
			},
		},
		{
			Name: "SKP Not Held",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{3: 0xB},
				Keypad:    [16]bool{0xA: true},
				Memory: map[uint16]byte{
					0x0200: 0xE3, 0x0201: 0x9E,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Registers: [16]uint8{3: 0xB},
			},
		},
		{
			Name: "SKNP Not Held",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{3: 0xB},
				Memory: map[uint16]byte{
					0x0200: 0xE3, 0x0201: 0xA1,
				},
			},
			Output: testMachineState{
				Program:   0x0204,
				Registers: [16]uint8{3: 0xB},
			},
		},
		{
			Name: "SKNP Held",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{3: 0xB},
				Keypad:    [16]bool{0xB: true},
				Memory: map[uint16]byte{
					0x0200: 0xE3, 0x0201: 0xA1,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Registers: [16]uint8{3: 0xB},
			},
		},
		{
			Name: "SKP Key Masked",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{3: 0x12},
				Keypad:    [16]bool{0x2: true},
				Memory: map[uint16]byte{
					0x0200: 0xE3, 0x0201: 0x9E,
				},
			},
			Output: testMachineState{
				Program:   0x0204,
				Registers: [16]uint8{3: 0x12},
			},
		},
	})
}

// LD   |0110    |x      |nn             | Vx = nn
// ADD  |0111    |x      |nn             | Vx += nn, flag untouched
// LD   |1010    |nnn                    | I = nnn
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestLoadImmediate(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "LD Byte",
			Input: testMachineState{
				Program: 0x0200,
				Memory: map[uint16]byte{
					0x0200: 0x6A, 0x0201: 0x5C,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Registers: [16]uint8{0xA: 0x5C},
			},
		},
		{
			Name: "ADD Byte Wraps Without Flag",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{2: 0xFE, 0xF: 0x7},
				Memory: map[uint16]byte{
					0x0200: 0x72, 0x0201: 0x03,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Registers: [16]uint8{2: 0x01, 0xF: 0x7},
			},
		},
		{
			Name: "LD I",
			Input: testMachineState{
				Program: 0x0200,
				Memory: map[uint16]byte{
					0x0200: 0xA1, 0x0201: 0x23,
				},
			},
			Output: testMachineState{
				Program: 0x0202,
				Index:   0x0123,
			},
		},
	})
}

// ALU  |1000    |x      |y      |op     | Register arithmetic
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestALU(t *testing.T) {
	alu := func(name string, op byte, in, out [16]uint8) testCase {
		return testCase{
			Name: name,
			Input: testMachineState{
				Program:   0x0200,
				Registers: in,
				Memory: map[uint16]byte{
					0x0200: 0x80, 0x0201: 0x10 | op,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Registers: out,
			},
		}
	}

	testSuccess(t, []testCase{
		alu("LD", 0x0, [16]uint8{0: 1, 1: 9}, [16]uint8{0: 9, 1: 9}),
		alu("OR", 0x1, [16]uint8{0: 0xF0, 1: 0x0F, 0xF: 5}, [16]uint8{0: 0xFF, 1: 0x0F, 0xF: 5}),
		alu("AND", 0x2, [16]uint8{0: 0xFC, 1: 0x3F}, [16]uint8{0: 0x3C, 1: 0x3F}),
		alu("XOR", 0x3, [16]uint8{0: 0xFF, 1: 0x0F}, [16]uint8{0: 0xF0, 1: 0x0F}),
		alu("ADD No Carry", 0x4, [16]uint8{0: 10, 1: 5, 0xF: 1}, [16]uint8{0: 15, 1: 5, 0xF: 0}),
		alu("ADD Carry", 0x4, [16]uint8{0: 250, 1: 10}, [16]uint8{0: 4, 1: 10, 0xF: 1}),
		alu("ADD Exactly 255", 0x4, [16]uint8{0: 250, 1: 5}, [16]uint8{0: 255, 1: 5, 0xF: 0}),
		alu("SUB No Borrow", 0x5, [16]uint8{0: 10, 1: 3}, [16]uint8{0: 7, 1: 3, 0xF: 1}),
		alu("SUB Equal", 0x5, [16]uint8{0: 3, 1: 3}, [16]uint8{0: 0, 1: 3, 0xF: 1}),
		alu("SUB Borrow", 0x5, [16]uint8{0: 3, 1: 10, 0xF: 1}, [16]uint8{0: 249, 1: 10, 0xF: 0}),
		alu("SHR Odd", 0x6, [16]uint8{0: 0x05, 1: 0xAA}, [16]uint8{0: 0x02, 1: 0xAA, 0xF: 1}),
		alu("SHR Even", 0x6, [16]uint8{0: 0x04, 0xF: 1}, [16]uint8{0: 0x02, 0xF: 0}),
		alu("SUBN No Borrow", 0x7, [16]uint8{0: 3, 1: 10}, [16]uint8{0: 7, 1: 10, 0xF: 1}),
		alu("SUBN Borrow", 0x7, [16]uint8{0: 10, 1: 3}, [16]uint8{0: 249, 1: 3, 0xF: 0}),
		alu("SHL High", 0xE, [16]uint8{0: 0x81}, [16]uint8{0: 0x02, 0xF: 1}),
		alu("SHL Low", 0xE, [16]uint8{0: 0x41, 0xF: 1}, [16]uint8{0: 0x82, 0xF: 0}),
		alu("Bad Op", 0x8, [16]uint8{0: 1, 1: 2}, [16]uint8{0: 1, 1: 2}),
	})

	testSuccess(t, []testCase{
		{
			Name: "ADD Into Flag Keeps Carry",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{0x1: 0x10, 0xF: 0xF8},
				Memory: map[uint16]byte{
					0x0200: 0x8F, 0x0201: 0x14,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Registers: [16]uint8{0x1: 0x10, 0xF: 1},
			},
		},
		{
			Name: "SUB From Flag Uses Original",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{0x1: 0x01, 0xF: 0x05},
				Memory: map[uint16]byte{
					0x0200: 0x8F, 0x0201: 0x15,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Registers: [16]uint8{0x1: 0x01, 0xF: 1},
			},
		},
	})
}

func TestAddProperty(t *testing.T) {
	var mc machine.Machine

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			mc.State.Reset()
			mc.State.Memory[0x200] = 0x80
			mc.State.Memory[0x201] = 0x14
			mc.State.Registers[0] = uint8(a)
			mc.State.Registers[1] = uint8(b)

			if err := mc.Step(); err != nil {
				t.Fatal(err)
			}

			wantFlag := uint8(0)
			if a+b > 255 {
				wantFlag = 1
			}

			if have := mc.State.Registers[0]; have != uint8((a+b)%256) {
				t.Fatalf("%d+%d: want %d have %d", a, b, (a+b)%256, have)
			}

			if have := mc.State.Registers[0xF]; have != wantFlag {
				t.Fatalf("%d+%d: flag want %d have %d", a, b, wantFlag, have)
			}
		}
	}
}

func TestSubProperty(t *testing.T) {
	var mc machine.Machine

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			mc.State.Reset()
			mc.State.Memory[0x200] = 0x80
			mc.State.Memory[0x201] = 0x15
			mc.State.Registers[0] = uint8(a)
			mc.State.Registers[1] = uint8(b)

			if err := mc.Step(); err != nil {
				t.Fatal(err)
			}

			wantFlag := uint8(0)
			if b <= a {
				wantFlag = 1
			}

			if have := mc.State.Registers[0]; have != uint8(a-b) {
				t.Fatalf("%d-%d: want %d have %d", a, b, uint8(a-b), have)
			}

			if have := mc.State.Registers[0xF]; have != wantFlag {
				t.Fatalf("%d-%d: flag want %d have %d", a, b, wantFlag, have)
			}
		}
	}
}

func TestShiftProperty(t *testing.T) {
	var mc machine.Machine

	for a := 0; a < 256; a++ {
		for _, op := range []byte{0x06, 0x0E} {
			mc.State.Reset()
			mc.State.Memory[0x200] = 0x80
			mc.State.Memory[0x201] = op
			mc.State.Registers[0] = uint8(a)

			if err := mc.Step(); err != nil {
				t.Fatal(err)
			}

			var want, wantFlag uint8
			if op == 0x06 {
				want, wantFlag = uint8(a)>>1, uint8(a)&1
			} else {
				want, wantFlag = uint8(a)<<1, uint8(a)>>7
			}

			if have := mc.State.Registers[0]; have != want {
				t.Fatalf("8XY%X on %#02x: want %#02x have %#02x", op, a, want, have)
			}

			if have := mc.State.Registers[0xF]; have != wantFlag {
				t.Fatalf("8XY%X on %#02x: flag want %d have %d", op, a, wantFlag, have)
			}
		}
	}
}

// RND  |1100    |x      |nn             | Vx = random & nn
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestRandom(t *testing.T) {
	for _, mask := range []uint8{0x00, 0x0F, 0xA5, 0xFF} {
		var mc machine.Machine
		mc.Rand = rand.New(rand.NewSource(42))
		want := uint8(rand.New(rand.NewSource(42)).Intn(256)) & mask

		mc.State.Reset()
		mc.State.Memory[0x200] = 0xC7
		mc.State.Memory[0x201] = mask

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		if have := mc.State.Registers[7]; have != want {
			t.Errorf("RND mask %#02x\nwant:%#02x\nhave:%#02x", mask, want, have)
		}
	}
}

// MISC |1111    |x      |op             | Timers, keys, index, memory
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestMisc(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "LD Vx DT",
			Input: testMachineState{
				Program: 0x0200,
				Delay:   0x33,
				Memory: map[uint16]byte{
					0x0200: 0xF5, 0x0201: 0x07,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Delay:     0x33,
				Registers: [16]uint8{5: 0x33},
			},
		},
		{
			Name: "LD DT Vx",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{5: 0x21},
				Memory: map[uint16]byte{
					0x0200: 0xF5, 0x0201: 0x15,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Delay:     0x21,
				Registers: [16]uint8{5: 0x21},
			},
		},
		{
			Name: "LD ST Vx",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{5: 0x21},
				Memory: map[uint16]byte{
					0x0200: 0xF5, 0x0201: 0x18,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Sound:     0x21,
				Registers: [16]uint8{5: 0x21},
			},
		},
		{
			Name: "ADD I Vx",
			Input: testMachineState{
				Program:   0x0200,
				Index:     0x0FF0,
				Registers: [16]uint8{1: 0x20, 0xF: 0x9},
				Memory: map[uint16]byte{
					0x0200: 0xF1, 0x0201: 0x1E,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Index:     0x1010,
				Registers: [16]uint8{1: 0x20, 0xF: 0x9},
			},
		},
		{
			Name: "LD F Vx",
			Input: testMachineState{
				Program:   0x0200,
				Registers: [16]uint8{2: 0xA},
				Memory: map[uint16]byte{
					0x0200: 0xF2, 0x0201: 0x29,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Index:     0x0032,
				Registers: [16]uint8{2: 0xA},
			},
		},
		{
			Name: "LD B Vx",
			Input: testMachineState{
				Program:   0x0200,
				Index:     0x0400,
				Registers: [16]uint8{6: 254},
				Memory: map[uint16]byte{
					0x0200: 0xF6, 0x0201: 0x33,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Index:     0x0400,
				Registers: [16]uint8{6: 254},
				Memory: map[uint16]byte{
					0x0400: 2, 0x0401: 5, 0x0402: 4,
				},
			},
		},
		{
			Name: "LD [I] Vx",
			Input: testMachineState{
				Program:   0x0200,
				Index:     0x0400,
				Registers: [16]uint8{0: 0xA, 1: 0xB, 2: 0xC, 3: 0xD},
				Memory: map[uint16]byte{
					0x0200: 0xF2, 0x0201: 0x55,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Index:     0x0400,
				Registers: [16]uint8{0: 0xA, 1: 0xB, 2: 0xC, 3: 0xD},
				Memory: map[uint16]byte{
					0x0400: 0xA, 0x0401: 0xB, 0x0402: 0xC,
				},
			},
		},
		{
			Name: "LD Vx [I]",
			Input: testMachineState{
				Program:   0x0200,
				Index:     0x0400,
				Registers: [16]uint8{3: 0x77},
				Memory: map[uint16]byte{
					0x0200: 0xF2, 0x0201: 0x65,
					0x0400: 0x1, 0x0401: 0x2, 0x0402: 0x3, 0x0403: 0x4,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Index:     0x0400,
				Registers: [16]uint8{0: 0x1, 1: 0x2, 2: 0x3, 3: 0x77},
			},
		},
		{
			Name: "LD [I] Vx Wraps",
			Input: testMachineState{
				Program:   0x0200,
				Index:     0x0FFF,
				Registers: [16]uint8{0: 0xA, 1: 0xB},
				Memory: map[uint16]byte{
					0x0200: 0xF1, 0x0201: 0x55,
				},
			},
			Output: testMachineState{
				Program:   0x0202,
				Index:     0x0FFF,
				Registers: [16]uint8{0: 0xA, 1: 0xB},
				Memory: map[uint16]byte{
					0x0FFF: 0xA, 0x0000: 0xB,
				},
			},
		},
	})
}

// DRW  |1101    |x      |y      |n      | Draw n-byte sprite at Vx, Vy
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestDraw(t *testing.T) {
	sprite := func(x, y uint8, rows ...byte) *machine.Machine {
		mc := newTestMachine(&testMachineState{
			Program:   0x0200,
			Index:     0x0300,
			Registers: [16]uint8{1: x, 2: y, 0xF: 0x5},
			Memory: map[uint16]byte{
				0x0200: 0xD1, 0x0201: 0x20 | byte(len(rows)),
			},
		})
		copy(mc.State.Memory[0x0300:], rows)
		return mc
	}

	lit := func(mc *machine.Machine) int {
		count := 0
		for _, pixel := range mc.State.Display {
			if pixel {
				count++
			}
		}
		return count
	}

	t.Run("Plain", func(t *testing.T) {
		mc := sprite(3, 4, 0b1010_0000, 0b0100_0001)

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		for _, p := range [][2]int{{3, 4}, {5, 4}, {4, 5}, {10, 5}} {
			if !mc.State.Display.Pixel(p[0], p[1]) {
				t.Errorf("Pixel (%d,%d) not set", p[0], p[1])
			}
		}

		if have := lit(mc); have != 4 {
			t.Errorf("Lit pixel count\nwant:4\nhave:%d", have)
		}

		if mc.State.Registers[0xF] != 0 {
			t.Error("Collision flag set on empty display")
		}

		if !mc.State.Draw {
			t.Error("Draw flag not set")
		}

		if mc.State.Program != 0x0202 {
			t.Errorf("Program counter\nwant:0x0202\nhave:%#04x", mc.State.Program)
		}
	})

	t.Run("Twice Restores Display", func(t *testing.T) {
		mc := sprite(60, 30, 0xFF, 0x81, 0xFF)
		mc.State.Display[0] = true

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		first := lit(mc)
		mc.State.Program = 0x0200

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		if mc.State.Registers[0xF] != 1 {
			t.Error("Collision flag not set on redraw")
		}

		if have := lit(mc); have != 1 || !mc.State.Display[0] {
			t.Errorf("Display not restored, %d lit after first draw, %d after second", first, have)
		}
	})

	t.Run("Collision Is Sticky", func(t *testing.T) {
		mc := sprite(0, 0, 0b1000_0000, 0b1000_0000)
		mc.State.Display.Set(0, 0, true)

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		if mc.State.Registers[0xF] != 1 {
			t.Error("Collision in first row was cleared by second row")
		}

		if mc.State.Display.Pixel(0, 0) || !mc.State.Display.Pixel(0, 1) {
			t.Error("Unexpected pixels after collision")
		}
	})

	t.Run("Origin Wraps", func(t *testing.T) {
		mc := sprite(64+2, 32+1, 0b1000_0000)

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		if !mc.State.Display.Pixel(2, 1) {
			t.Error("Origin did not wrap")
		}
	})

	t.Run("Clips Right And Bottom", func(t *testing.T) {
		mc := sprite(62, 31, 0xFF, 0xFF)

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		if have := lit(mc); have != 2 {
			t.Errorf("Lit pixel count\nwant:2\nhave:%d", have)
		}

		if !mc.State.Display.Pixel(62, 31) || !mc.State.Display.Pixel(63, 31) {
			t.Error("Visible part of sprite not drawn")
		}

		if mc.State.Display.Pixel(0, 31) || mc.State.Display.Pixel(62, 0) {
			t.Error("Sprite wrapped instead of clipping")
		}
	})

	t.Run("Zero Rows", func(t *testing.T) {
		mc := sprite(0, 0)

		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}

		if have := lit(mc); have != 0 {
			t.Errorf("Lit pixel count\nwant:0\nhave:%d", have)
		}

		if mc.State.Registers[0xF] != 0 {
			t.Error("Collision flag not reset")
		}
	})
}

// LD   |1111    |x      |0000   |1010   | Wait for key press and release
// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
func TestWaitKey(t *testing.T) {
	mc := newTestMachine(&testMachineState{
		Program: 0x0200,
		Memory: map[uint16]byte{
			0x0200: 0xF4, 0x0201: 0x0A,
		},
	})

	step := func() {
		t.Helper()
		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 5; i++ {
		step()

		if mc.State.Program != 0x0200 {
			t.Fatalf("Program advanced without a key\nhave:%#04x", mc.State.Program)
		}
	}

	mc.State.Keypad[0x7] = true
	step()
	step()

	if mc.State.Program != 0x0200 {
		t.Fatalf("Program advanced while key held\nhave:%#04x", mc.State.Program)
	}

	// Another key going down doesn't change which one is awaited
	mc.State.Keypad[0x2] = true
	mc.State.Keypad[0x7] = false
	step()

	if mc.State.Program != 0x0202 {
		t.Fatalf("Program did not advance on release\nhave:%#04x", mc.State.Program)
	}

	if mc.State.Registers[4] != 0x7 {
		t.Errorf("Key register\nwant:0x7\nhave:%#x", mc.State.Registers[4])
	}

	if mc.State.KeyWait.Pressed {
		t.Error("Key wait state not cleared")
	}
}

func TestUnknown(t *testing.T) {
	var mc machine.Machine
	var dbg countingDebugger

	program := []byte{
		0x01, 0x23, // SYS
		0x51, 0x2F, // 5xy with a nonzero nibble
		0xE1, 0x00, // E with a bad low byte
		0xF1, 0xFF, // F with a bad low byte
		0x80, 0x1C, // 8 with a bad low nibble
	}

	if err := mc.Load(program); err != nil {
		t.Fatal(err)
	}
	mc.Debugger = &dbg

	for range program[:len(program)/2] {
		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}
	}

	if mc.State.Unknown != 5 {
		t.Errorf("Unknown count\nwant:5\nhave:%d", mc.State.Unknown)
	}

	if len(dbg.unknown) != 5 || dbg.unknown[0] != 0x0123 {
		t.Errorf("Unknown hook calls\nhave:%#04x", dbg.unknown)
	}

	if dbg.steps != 5 {
		t.Errorf("Step hook calls\nwant:5\nhave:%d", dbg.steps)
	}

	if mc.State.Program != 0x020A {
		t.Errorf("Program counter\nwant:0x020a\nhave:%#04x", mc.State.Program)
	}
}

func TestScenarioAdd(t *testing.T) {
	var mc machine.Machine

	if err := mc.Load([]byte{0x60, 0x0A, 0x61, 0x05, 0x80, 0x14}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := mc.Step(); err != nil {
			t.Fatal(err)
		}
	}

	if mc.State.Registers[0] != 15 || mc.State.Registers[0xF] != 0 {
		t.Errorf(
			"Registers\nwant:V0=15 VF=0\nhave:V0=%d VF=%d",
			mc.State.Registers[0],
			mc.State.Registers[0xF],
		)
	}

	if mc.State.Program != 0x0206 {
		t.Errorf("Program counter\nwant:0x0206\nhave:%#04x", mc.State.Program)
	}

	if ins := mc.State.Instruction; ins.Opcode != 0x8014 || ins.X != 0 || ins.Y != 1 || ins.Nibble != 4 {
		t.Errorf("Instruction decode\nhave:%+v", ins)
	}
}
