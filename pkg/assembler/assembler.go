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

// Package assembler turns CHIP-8 assembly into a program image loadable at
// the machine's entry point. Mnemonics and operands match what pkg/disasm
// prints, so a disassembly listing reassembles to the same bytes.
package assembler

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/lassandro/gochip8/pkg/encoding"
	"github.com/lassandro/gochip8/pkg/machine"
)

var instructions = map[string]InstructionType{
	"CLS":  INSTRUCTION_CLS,
	"RET":  INSTRUCTION_RET,
	"SYS":  INSTRUCTION_SYS,
	"JP":   INSTRUCTION_JP,
	"CALL": INSTRUCTION_CALL,
	"SE":   INSTRUCTION_SE,
	"SNE":  INSTRUCTION_SNE,
	"LD":   INSTRUCTION_LD,
	"ADD":  INSTRUCTION_ADD,
	"OR":   INSTRUCTION_OR,
	"AND":  INSTRUCTION_AND,
	"XOR":  INSTRUCTION_XOR,
	"SUB":  INSTRUCTION_SUB,
	"SHR":  INSTRUCTION_SHR,
	"SUBN": INSTRUCTION_SUBN,
	"SHL":  INSTRUCTION_SHL,
	"RND":  INSTRUCTION_RND,
	"DRW":  INSTRUCTION_DRW,
	"SKP":  INSTRUCTION_SKP,
	"SKNP": INSTRUCTION_SKNP,
}

var directives = map[string]DirectiveType{
	".ORIG": DIRECTIVE_ORIG,
	".BYTE": DIRECTIVE_BYTE,
	".WORD": DIRECTIVE_WORD,
	".BLKB": DIRECTIVE_BLKB,
	".END":  DIRECTIVE_END,
}

// Register-register forms of the 8xyN family
var aluOps = map[InstructionType]uint16{
	INSTRUCTION_OR:   machine.ALU_OR,
	INSTRUCTION_AND:  machine.ALU_AND,
	INSTRUCTION_XOR:  machine.ALU_XOR,
	INSTRUCTION_SUB:  machine.ALU_SUB,
	INSTRUCTION_SHR:  machine.ALU_SHR,
	INSTRUCTION_SUBN: machine.ALU_SUBN,
	INSTRUCTION_SHL:  machine.ALU_SHL,
}

func parseInstruction(ident string) InstructionType {
	return instructions[strings.ToUpper(ident)]
}

func parseDirective(ident string) DirectiveType {
	return directives[strings.ToUpper(ident)]
}

// Accepts $FF, 0xFF, 0b1010, #10 and 10. Negative decimals are stored as
// two's complement within the operand width.
func parseLiteral(token *Token, bits LiteralType) (uint16, error) {
	var result int64
	var err error

	value := token.Value

	switch {
	case strings.HasPrefix(value, "$"):
		var hex uint16
		hex, err = encoding.DecodeHex("0x" + value[1:])
		result = int64(hex)

	case strings.HasPrefix(value, "0x"), strings.HasPrefix(value, "0X"):
		var hex uint16
		hex, err = encoding.DecodeHex(value)
		result = int64(hex)

	case strings.HasPrefix(value, "0b"), strings.HasPrefix(value, "0B"):
		var bin uint64
		bin, err = strconv.ParseUint(value[2:], 2, 16)
		result = int64(bin)

	default:
		var dec int32
		dec, err = encoding.DecodeInt(value)
		result = int64(dec)
	}

	if err != nil {
		return 0, &InvalidLiteralError{token.Position}
	}

	limit := int64(1) << bits

	if result >= limit || result < -(limit>>1) {
		return 0, &OversizedLiteralError{token.Position, limit - 1, result}
	}

	return uint16(result) & uint16(limit-1), nil
}

func parseRegister(token *Token) (uint16, bool) {
	ident := token.Value

	if token.Type != TOKEN_IDENT || len(ident) != 2 {
		return 0, false
	}

	if ident[0] != 'V' && ident[0] != 'v' {
		return 0, false
	}

	reg, err := strconv.ParseUint(ident[1:], 16, 8)

	if err != nil {
		return 0, false
	}

	return uint16(reg), true
}

func parseOperand(token *Token) OperandType {
	switch token.Type {
	case TOKEN_LITERAL:
		return OPERAND_IMMEDIATE

	case TOKEN_IDENT:
		if _, ok := parseRegister(token); ok {
			return OPERAND_REGISTER
		}

		switch strings.ToUpper(token.Value) {
		case "I":
			return OPERAND_INDEX
		case "[I]":
			return OPERAND_INDIRECT
		case "DT":
			return OPERAND_DELAY
		case "ST":
			return OPERAND_SOUND
		case "K":
			return OPERAND_KEY
		case "F":
			return OPERAND_FONT
		case "B":
			return OPERAND_BCD
		}

		return OPERAND_LABEL
	}

	return OPERAND_INVALID
}

// Splits a line into tokens. Commas and whitespace separate operands, a
// trailing colon ends a label and ';' starts a comment.
func tokenize(line string, cursor Cursor) (tokens []Token, errs []error) {
	var builder strings.Builder
	var tokenType = TOKEN_NONE
	var tokenStart int

	flush := func() {
		if builder.Len() > 0 {
			tokens = append(tokens, Token{
				Type:  tokenType,
				Value: builder.String(),
				Position: Cursor{
					Line:     cursor.Line,
					Column:   tokenStart,
					Byte:     cursor.LineByte + int64(tokenStart-1),
					Size:     int64(builder.Len()),
					LineByte: cursor.LineByte,
				},
			})
		}

		builder.Reset()
		tokenType = TOKEN_NONE
	}

	for column, char := range line {
		cursor.Column = column + 1

		if tokenType == TOKEN_NONE {
			tokenStart = cursor.Column
		}

		switch {
		// Separators
		case unicode.IsSpace(char), char == ',':
			flush()
			continue

		// Comments
		case char == ';':
			flush()
			return

		// Label terminator
		case char == ':':
			if tokenType != TOKEN_IDENT {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
			} else {
				tokenType = TOKEN_LABEL
			}

			flush()
			continue

		case char > unicode.MaxASCII:
			errs = append(errs, &OversizedCharacterError{cursor})
			continue

		// Assembler Directives
		case char == '.':
			if tokenType != TOKEN_NONE {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
				continue
			}

			tokenType = TOKEN_DIRECTIVE

		// Hex ($2A) and Base 10 (#42) Literals
		case char == '$' || char == '#':
			if tokenType != TOKEN_NONE {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
				continue
			}

			tokenType = TOKEN_LITERAL

		// Numeric Sign
		case char == '-':
			if tokenType == TOKEN_NONE {
				tokenType = TOKEN_LITERAL
			} else if tokenType != TOKEN_LITERAL {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
				continue
			}

		// Numeric Literal
		case unicode.IsDigit(char):
			if tokenType == TOKEN_NONE {
				tokenType = TOKEN_LITERAL
			}

		// Identifiers, including the bracketed [I]
		case unicode.IsLetter(char), char == '_', char == '[', char == ']':
			if tokenType == TOKEN_NONE {
				tokenType = TOKEN_IDENT
			}

		default:
			errs = append(errs, &UnexpectedCharacterError{cursor, char})
			continue
		}

		builder.WriteRune(char)
	}

	flush()
	return
}

// Positional errors sort by line then column, ahead of errors without one
func errorBefore(a, b error) bool {
	ta, aok := a.(TokenError)
	tb, bok := b.(TokenError)

	if !aok || !bok {
		return aok && !bok
	}

	pa, pb := ta.GetPosition(), tb.GetPosition()

	if pa.Line != pb.Line {
		return pa.Line < pb.Line
	}

	return pa.Column < pb.Column
}

type labelRef struct {
	Label    string
	Addr     uint16
	Mask     uint16
	Position Cursor
}

type assembly struct {
	image   [machine.MEMSPACE_SIZE]byte
	program uint32
	end     uint32

	labels    map[string]uint16
	labelRefs []labelRef

	overflow bool
	errs     []error
}

func (as *assembly) fail(err error) {
	as.errs = append(as.errs, err)
}

func (as *assembly) emitByte(value byte) {
	if as.program >= machine.MEMSPACE_SIZE {
		if !as.overflow {
			as.fail(&OversizedBinaryError{})
			as.overflow = true
		}

		return
	}

	as.image[as.program] = value
	as.program++

	if as.program > as.end {
		as.end = as.program
	}
}

func (as *assembly) emit(opcode uint16) {
	as.emitByte(byte(opcode >> 8))
	as.emitByte(byte(opcode))
}

func (as *assembly) arity(keyword *Token, operands []Token, count int) bool {
	if len(operands) != count {
		as.fail(&InvalidNumArgumentsError{keyword.Position, count, len(operands)})
		return false
	}

	return true
}

func (as *assembly) register(token *Token) uint16 {
	if token.Type != TOKEN_IDENT {
		as.fail(&InvalidOperandError{
			token.Position, []TokenType{TOKEN_IDENT}, token.Type,
		})

		return 0
	}

	reg, ok := parseRegister(token)

	if !ok {
		as.fail(&InvalidRegisterError{token.Position})
	}

	return reg
}

func (as *assembly) literal(token *Token, bits LiteralType) uint16 {
	if token.Type != TOKEN_LITERAL {
		as.fail(&InvalidOperandError{
			token.Position, []TokenType{TOKEN_LITERAL}, token.Type,
		})

		return 0
	}

	value, err := parseLiteral(token, bits)

	if err != nil {
		as.fail(err)
	}

	return value
}

// Literal or label operand. Labels are resolved once the whole source has
// been read, so every reference is patched in afterwards.
func (as *assembly) address(token *Token, mask uint16, bits LiteralType) uint16 {
	if parseOperand(token) != OPERAND_LABEL {
		return as.literal(token, bits)
	}

	as.labelRefs = append(as.labelRefs, labelRef{
		Label:    token.Value,
		Addr:     uint16(as.program),
		Mask:     mask,
		Position: token.Position,
	})

	return 0
}

func (as *assembly) directive(directive DirectiveType, keyword *Token, operands []Token) {
	switch directive {
	// .ORIG $###
	case DIRECTIVE_ORIG:
		if !as.arity(keyword, operands, 1) {
			break
		}

		origin := as.literal(&operands[0], LITERAL_ADDR)

		if origin < machine.MEMSPACE_PROGRAM {
			as.fail(&InvalidOriginError{operands[0].Position, origin})
			break
		}

		as.program = uint32(origin)

	// .BYTE $##[, $##...]
	case DIRECTIVE_BYTE:
		if len(operands) == 0 {
			as.fail(&InvalidNumArgumentsError{keyword.Position, 1, 0})
			break
		}

		for i := range operands {
			as.emitByte(byte(as.literal(&operands[i], LITERAL_BYTE)))
		}

	// .WORD $####|label[, ...]
	case DIRECTIVE_WORD:
		if len(operands) == 0 {
			as.fail(&InvalidNumArgumentsError{keyword.Position, 1, 0})
			break
		}

		for i := range operands {
			as.emit(as.address(&operands[i], 0xFFFF, LITERAL_WORD))
		}

	// .BLKB #
	case DIRECTIVE_BLKB:
		if !as.arity(keyword, operands, 1) {
			break
		}

		count := as.literal(&operands[0], LITERAL_ADDR)

		for i := uint16(0); i < count; i++ {
			as.emitByte(0)
		}
	}
}

// Returns false when the statement had no encoding to emit
func (as *assembly) instruction(instruction InstructionType, keyword *Token, operands []Token) bool {
	var scratch uint16

	switch instruction {
	// CLS  |0000    |0000   |1110   |0000   | Clear display
	// RET  |0000    |0000   |1110   |1110   | Return from subroutine
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_CLS, INSTRUCTION_RET:
		as.arity(keyword, operands, 0)

		if instruction == INSTRUCTION_CLS {
			scratch = machine.SYS_CLS
		} else {
			scratch = machine.SYS_RET
		}

	// SYS  |0000    |nnn                    | Machine routine
	// JP   |0001    |nnn                    | Jump
	// CALL |0010    |nnn                    | Call subroutine
	// JP   |1011    |nnn                    | Jump to V0 + nnn
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_SYS, INSTRUCTION_JP, INSTRUCTION_CALL:
		switch {
		case instruction == INSTRUCTION_JP && len(operands) == 2:
			if reg, ok := parseRegister(&operands[0]); !ok || reg != 0 {
				as.fail(&InvalidRegisterError{operands[0].Position})
			}

			scratch = machine.OP_JPV<<12 | as.address(&operands[1], 0xFFF, LITERAL_ADDR)

		case as.arity(keyword, operands, 1):
			switch instruction {
			case INSTRUCTION_SYS:
				scratch = machine.OP_SYS << 12
			case INSTRUCTION_JP:
				scratch = machine.OP_JP << 12
			case INSTRUCTION_CALL:
				scratch = machine.OP_CALL << 12
			}

			scratch |= as.address(&operands[0], 0xFFF, LITERAL_ADDR)
		}

	// SE   |0011    |x      |nn             | Skip if Vx == nn
	// SNE  |0100    |x      |nn             | Skip if Vx != nn
	// SE   |0101    |x      |y      |0000   | Skip if Vx == Vy
	// SNE  |1001    |x      |y      |0000   | Skip if Vx != Vy
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_SE, INSTRUCTION_SNE:
		if !as.arity(keyword, operands, 2) {
			break
		}

		x := as.register(&operands[0])

		if parseOperand(&operands[1]) == OPERAND_REGISTER {
			y := as.register(&operands[1])

			if instruction == INSTRUCTION_SE {
				scratch = machine.OP_SER << 12
			} else {
				scratch = machine.OP_SNER << 12
			}

			scratch |= x<<8 | y<<4
		} else {
			if instruction == INSTRUCTION_SE {
				scratch = machine.OP_SE << 12
			} else {
				scratch = machine.OP_SNE << 12
			}

			scratch |= x<<8 | as.literal(&operands[1], LITERAL_BYTE)
		}

	// LD   |0110    |x      |nn             | Vx = nn
	// LD   |1000    |x      |y      |0000   | Vx = Vy
	// LD   |1010    |nnn                    | I = nnn
	// LD   |1111    |x      |op             | Timers, keys, font, BCD, [I]
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_LD:
		if !as.arity(keyword, operands, 2) {
			break
		}

		dst, src := parseOperand(&operands[0]), parseOperand(&operands[1])

		misc := func(op uint16, reg *Token) {
			scratch = machine.OP_MISC<<12 | as.register(reg)<<8 | op
		}

		switch {
		case dst == OPERAND_REGISTER && src == OPERAND_IMMEDIATE:
			x := as.register(&operands[0])
			scratch = machine.OP_LD<<12 | x<<8 | as.literal(&operands[1], LITERAL_BYTE)

		case dst == OPERAND_REGISTER && src == OPERAND_REGISTER:
			x, y := as.register(&operands[0]), as.register(&operands[1])
			scratch = machine.OP_ALU<<12 | x<<8 | y<<4 | machine.ALU_LD

		case dst == OPERAND_INDEX && (src == OPERAND_IMMEDIATE || src == OPERAND_LABEL):
			scratch = machine.OP_LDI<<12 | as.address(&operands[1], 0xFFF, LITERAL_ADDR)

		case dst == OPERAND_REGISTER && src == OPERAND_DELAY:
			misc(machine.MISC_LD_DT, &operands[0])
		case dst == OPERAND_REGISTER && src == OPERAND_KEY:
			misc(machine.MISC_LD_K, &operands[0])
		case dst == OPERAND_REGISTER && src == OPERAND_INDIRECT:
			misc(machine.MISC_LOAD, &operands[0])
		case dst == OPERAND_DELAY && src == OPERAND_REGISTER:
			misc(machine.MISC_SET_DT, &operands[1])
		case dst == OPERAND_SOUND && src == OPERAND_REGISTER:
			misc(machine.MISC_SET_ST, &operands[1])
		case dst == OPERAND_FONT && src == OPERAND_REGISTER:
			misc(machine.MISC_LD_F, &operands[1])
		case dst == OPERAND_BCD && src == OPERAND_REGISTER:
			misc(machine.MISC_LD_B, &operands[1])
		case dst == OPERAND_INDIRECT && src == OPERAND_REGISTER:
			misc(machine.MISC_STORE, &operands[1])

		default:
			as.fail(&InvalidOperandsError{keyword.Position, keyword.Value})
		}

	// ADD  |0111    |x      |nn             | Vx += nn
	// ADD  |1000    |x      |y      |0100   | Vx += Vy
	// ADD  |1111    |x      |0001   |1110   | I += Vx
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_ADD:
		if !as.arity(keyword, operands, 2) {
			break
		}

		dst, src := parseOperand(&operands[0]), parseOperand(&operands[1])

		switch {
		case dst == OPERAND_INDEX && src == OPERAND_REGISTER:
			x := as.register(&operands[1])
			scratch = machine.OP_MISC<<12 | x<<8 | machine.MISC_ADD_I

		case dst == OPERAND_REGISTER && src == OPERAND_REGISTER:
			x, y := as.register(&operands[0]), as.register(&operands[1])
			scratch = machine.OP_ALU<<12 | x<<8 | y<<4 | machine.ALU_ADD

		case dst == OPERAND_REGISTER:
			x := as.register(&operands[0])
			scratch = machine.OP_ADD<<12 | x<<8 | as.literal(&operands[1], LITERAL_BYTE)

		default:
			as.fail(&InvalidOperandsError{keyword.Position, keyword.Value})
		}

	// ALU  |1000    |x      |y      |op     | Register arithmetic
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_OR,
		INSTRUCTION_AND,
		INSTRUCTION_XOR,
		INSTRUCTION_SUB,
		INSTRUCTION_SUBN,
		INSTRUCTION_SHR,
		INSTRUCTION_SHL:
		var x, y uint16

		shift := instruction == INSTRUCTION_SHR || instruction == INSTRUCTION_SHL

		// Shifts ignore Vy, so it may be left out
		if shift && len(operands) == 1 {
			x = as.register(&operands[0])
		} else if as.arity(keyword, operands, 2) {
			x, y = as.register(&operands[0]), as.register(&operands[1])
		} else {
			break
		}

		scratch = machine.OP_ALU<<12 | x<<8 | y<<4 | aluOps[instruction]

	// RND  |1100    |x      |nn             | Vx = random & nn
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_RND:
		if !as.arity(keyword, operands, 2) {
			break
		}

		x := as.register(&operands[0])
		scratch = machine.OP_RND<<12 | x<<8 | as.literal(&operands[1], LITERAL_BYTE)

	// DRW  |1101    |x      |y      |n      | Draw n-byte sprite at Vx, Vy
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_DRW:
		if !as.arity(keyword, operands, 3) {
			break
		}

		x, y := as.register(&operands[0]), as.register(&operands[1])
		n := as.literal(&operands[2], LITERAL_NIBBLE)
		scratch = machine.OP_DRW<<12 | x<<8 | y<<4 | n

	// SKP  |1110    |x      |1001   |1110   | Skip if key Vx is held
	// SKNP |1110    |x      |1010   |0001   | Skip if key Vx is not held
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case INSTRUCTION_SKP, INSTRUCTION_SKNP:
		if !as.arity(keyword, operands, 1) {
			break
		}

		scratch = machine.OP_KEY<<12 | as.register(&operands[0])<<8

		if instruction == INSTRUCTION_SKP {
			scratch |= machine.KEY_SKP
		} else {
			scratch |= machine.KEY_SKNP
		}

	default:
		return false
	}

	as.emit(scratch)
	return true
}

// Declares a label at the current address. Returns false when the rest of
// the statement should be skipped.
func (as *assembly) label(label *Token) bool {
	ident := Token{Type: TOKEN_IDENT, Value: label.Value}

	if label.Type != TOKEN_IDENT && label.Type != TOKEN_LABEL ||
		parseOperand(&ident) != OPERAND_LABEL {
		as.fail(&UnknownIdentifierError{label.Position, label.Value})
		return false
	}

	if parseInstruction(label.Value) != INSTRUCTION_INVALID ||
		parseDirective(label.Value) != DIRECTIVE_INVALID {
		as.fail(&ReservedLabelError{label.Position, label.Value})
		return true
	}

	if _, exists := as.labels[label.Value]; exists {
		as.fail(&RedeclaredLabelError{label.Position, label.Value})
	} else {
		as.labels[label.Value] = uint16(as.program)
	}

	return true
}

// Assembles one tokenized line. Returns true once .END is reached.
func (as *assembly) statement(tokens []Token, symtable *SymTable) bool {
	keyword := &tokens[0]
	operands := tokens[1:]

	instruction := parseInstruction(keyword.Value)
	directive := parseDirective(keyword.Value)

	// A trailing colon always marks a label, even one spelled like a mnemonic
	if keyword.Type == TOKEN_LABEL ||
		instruction == INSTRUCTION_INVALID && directive == DIRECTIVE_INVALID {
		if !as.label(keyword) {
			return false
		}

		// No need to assemble label-only statements
		if len(tokens) == 1 {
			return false
		}

		keyword = &tokens[1]
		operands = tokens[2:]

		instruction = parseInstruction(keyword.Value)
		directive = parseDirective(keyword.Value)

		if keyword.Type == TOKEN_LABEL ||
			instruction == INSTRUCTION_INVALID && directive == DIRECTIVE_INVALID {
			as.fail(&UnknownIdentifierError{keyword.Position, keyword.Value})
			return false
		}
	}

	start := uint16(as.program)
	emitted := false

	switch directive {
	case DIRECTIVE_END:
		as.arity(keyword, operands, 0)
		return true

	case DIRECTIVE_INVALID:
		emitted = as.instruction(instruction, keyword, operands)

	default:
		as.directive(directive, keyword, operands)
		emitted = directive != DIRECTIVE_ORIG
	}

	if symtable != nil && emitted {
		symtable.Symbols[start] = keyword.Position.LineByte
	}

	return false
}

// Assemble reads source until EOF or .END and returns the image starting at
// the program entry point. Assembly continues past errors so every problem
// in the source is reported at once.
func Assemble(input io.Reader, symtable *SymTable) (result []byte, errs []error) {
	as := assembly{
		program: uint32(machine.MEMSPACE_PROGRAM),
		end:     uint32(machine.MEMSPACE_PROGRAM),
		labels:  make(map[string]uint16),
	}

	var scanner = bufio.NewScanner(input)
	var cursor = Cursor{Line: 1}

	for scanner.Scan() {
		line := scanner.Text()

		cursor.Size = int64(len(line))
		cursor.Byte = cursor.LineByte

		tokens, lineErrs := tokenize(line, cursor)
		as.errs = append(as.errs, lineErrs...)

		done := false

		// Skip assembling lines the tokenizer already rejected
		if len(tokens) > 0 && len(lineErrs) == 0 {
			done = as.statement(tokens, symtable)
		}

		cursor.Line++
		cursor.LineByte += int64(len(line) + 1)

		if done || as.overflow {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		as.fail(err)
	}

	for _, ref := range as.labelRefs {
		addr, exists := as.labels[ref.Label]

		if !exists {
			as.fail(&UnknownLabelError{ref.Position, ref.Label})
			continue
		}

		// Already reported as an oversized binary
		if int(ref.Addr)+1 >= machine.MEMSPACE_SIZE {
			continue
		}

		scratch := uint16(as.image[ref.Addr])<<8 | uint16(as.image[ref.Addr+1])
		scratch |= addr & ref.Mask

		as.image[ref.Addr] = byte(scratch >> 8)
		as.image[ref.Addr+1] = byte(scratch)
	}

	// Label references resolve after the scan; report everything in source order
	sort.SliceStable(as.errs, func(i, j int) bool {
		return errorBefore(as.errs[i], as.errs[j])
	})

	if symtable != nil {
		for label, addr := range as.labels {
			symtable.Labels[addr] = label
		}
	}

	result = make([]byte, as.end-uint32(machine.MEMSPACE_PROGRAM))
	copy(result, as.image[machine.MEMSPACE_PROGRAM:as.end])

	return result, as.errs
}
