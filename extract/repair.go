package extract

import (
	"fmt"
	"strings"
)

// candidateSpan finds the first bracket-opened span in the text and walks it
// with a depth tracker that understands string literals and escapes. It
// returns the span (to its balanced end, or the remainder of the text) plus
// the closing brackets still missing, innermost first.
func candidateSpan(text string) (string, []byte) {
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", nil
	}

	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return text[start : i+1], nil
				}
			}
		}
	}

	missing := make([]byte, 0, len(stack)+1)
	if inString {
		missing = append(missing, '"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		missing = append(missing, stack[i])
	}
	return text[start:], missing
}

// Repair normalizes a candidate span so a strict JSON parser can accept it:
// raw control characters inside string literals become escape sequences and
// any missing closers are appended. Already-valid JSON passes through
// unchanged, which keeps the pass idempotent.
func Repair(span string, missing []byte) string {
	var out strings.Builder
	out.Grow(len(span) + len(missing))

	inString := false
	escaped := false
	for i := 0; i < len(span); i++ {
		c := span[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				out.WriteByte(c)
			case c == '\\':
				escaped = true
				out.WriteByte(c)
			case c == '"':
				inString = false
				out.WriteByte(c)
			case c == '\n':
				out.WriteString(`\n`)
			case c == '\t':
				out.WriteString(`\t`)
			case c == '\r':
				out.WriteString(`\r`)
			case c < 0x20:
				// Stray control characters get a safe numeric reference.
				fmt.Fprintf(&out, `\u%04x`, c)
			default:
				out.WriteByte(c)
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		out.WriteByte(c)
	}
	out.Write(missing)
	return out.String()
}
