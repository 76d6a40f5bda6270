package sandbox

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrorPrefix marks a policy-reported error on the first line of stdout.
const ErrorPrefix = "[ERROR] "

const wrapperTemplate = `-- generated by luabox, removed after the run
local sandbox = dofile(%s)

local user_code = %s

local output, err = sandbox.run(user_code, %s)
if err then
    print("[ERROR] " .. tostring(err))
elseif output then
    io.write(tostring(output))
else
    print("")
end
`

// RenderWrapper returns a Lua program that loads the policy module at
// policyPath and hands it code with the given time budget.
func RenderWrapper(policyPath, code string, budget time.Duration) string {
	policyPath = strings.ReplaceAll(policyPath, `\`, "/")
	seconds := strconv.FormatFloat(budget.Seconds(), 'f', -1, 64)
	return fmt.Sprintf(wrapperTemplate, luaQuoted(policyPath), luaLiteral(code), seconds)
}

// luaLiteral encodes s as a Lua string literal whose value is exactly s.
func luaLiteral(s string) string {
	// long brackets translate any CR/LF sequence to "\n"
	if strings.ContainsRune(s, '\r') {
		return luaQuoted(s)
	}
	return luaLongBracket(s)
}

// luaLongBracket picks the lowest bracket level >= 1 whose closing sequence
// first occurs right after s. Level 0 is skipped since Lua 5.1 rejects
// nested "[[" inside it.
func luaLongBracket(s string) string {
	for level := 1; ; level++ {
		eq := strings.Repeat("=", level)
		closing := "]" + eq + "]"
		if strings.Index(s+closing, closing) == len(s) {
			// the newline after the opening bracket is skipped by the lexer
			return "[" + eq + "[\n" + s + closing
		}
	}
}

// luaQuoted encodes s as a double-quoted literal, escaping every byte that
// is not printable ASCII (and the quote and backslash) as \ddd.
func luaQuoted(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c < 0x7f && c != '"' && c != '\\' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "\\%03d", c)
	}
	b.WriteByte('"')
	return b.String()
}
