package btree

import "strings"

// ParseColumnNames tolerantly extracts an ordered column-name list from a
// CREATE TABLE statement's SQL text, the way sqlite_schema records it. It
// does not attempt to be a SQL parser: it finds the first matching
// top-level parenthesized column list and splits on commas that are not
// themselves inside a nested parenthesis (so column-level CHECK(...) and
// DEFAULT(...) clauses don't fracture the split) or inside a quoted
// identifier or string literal, mirroring the teacher's quoted-identifier
// handling along the way.
func ParseColumnNames(sql string) []string {
	start := strings.Index(sql, "(")
	if start < 0 {
		return nil
	}
	end := matchingParen(sql, start)
	if end < 0 {
		return nil
	}
	body := sql[start+1 : end]
	parts := splitTopLevel(body)

	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := columnNameFromDef(part)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// matchingParen returns the index of the ) that closes the ( at open.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits body on commas that aren't nested inside parens or
// inside "...", `...`, [...] or '...' quoting.
func splitTopLevel(body string) []string {
	var parts []string
	depth := 0
	last := 0
	var closeQuote rune
	for i, r := range body {
		if closeQuote != 0 {
			if r == closeQuote {
				closeQuote = 0
			}
			continue
		}
		switch r {
		case '"', '`', '\'':
			closeQuote = r
		case '[':
			closeQuote = ']'
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, body[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, body[last:])
	return parts
}

// tableConstraintPrefixes names the keywords that start a table-level
// constraint clause rather than a column definition; such entries are
// skipped since they don't name a column.
var tableConstraintPrefixes = []string{
	"primary key", "unique", "check", "foreign key", "constraint",
}

func columnNameFromDef(def string) string {
	trimmed := strings.TrimSpace(def)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	for _, kw := range tableConstraintPrefixes {
		if strings.HasPrefix(lower, kw) {
			return ""
		}
	}

	if strings.HasPrefix(trimmed, `"`) || strings.HasPrefix(trimmed, "`") || strings.HasPrefix(trimmed, "[") {
		return unquoteIdentifier(trimmed)
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// unquoteIdentifier strips one level of SQL quoting from a leading
// identifier: "col name", `col name`, or [col name].
func unquoteIdentifier(s string) string {
	if len(s) < 2 {
		return s
	}
	open := s[0]
	var close byte
	switch open {
	case '"':
		close = '"'
	case '`':
		close = '`'
	case '[':
		close = ']'
	default:
		return s
	}
	end := strings.IndexByte(s[1:], close)
	if end < 0 {
		return s
	}
	return s[1 : end+1]
}
