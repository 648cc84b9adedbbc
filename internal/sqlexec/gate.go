// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"strings"
	"unicode"
)

// RejectReason is the message returned for statements the gate refuses.
const RejectReason = "Only SELECT queries are supported"

// Classify reports whether sql may be executed. It is a prefix check, not a
// parser: after trimming, the first word must be SELECT (any case) and no
// second statement may follow a semicolon. WITH queries, leading comments and
// anything else are refused.
func Classify(sql string) bool {
	s := strings.TrimSpace(sql)
	if len(s) < len("select") || !strings.EqualFold(s[:len("select")], "select") {
		return false
	}
	if rest := s[len("select"):]; rest != "" {
		r := []rune(rest)[0]
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' {
			// SELECTED, SELECT_x, ...
			return false
		}
	}
	if i := strings.IndexByte(s, ';'); i >= 0 && strings.Trim(s[i:], "; \t\r\n") != "" {
		return false
	}
	return true
}
