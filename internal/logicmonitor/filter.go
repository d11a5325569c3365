package logicmonitor

import (
	"fmt"
	"strings"
)

// Term is one "field:value" condition of a filter expression.
type Term struct {
	Field string
	Value string
}

// Eq matches items whose field equals value.
func Eq(field string, value any) Term {
	return Term{Field: field, Value: fmt.Sprint(value)}
}

// Filter joins terms into a filter expression. Values are always quoted
// with '"' and '\' escaped, so a value containing ',' or ':' cannot add
// conditions of its own.
func Filter(terms ...Term) string {
	var b strings.Builder
	for i, t := range terms {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Field)
		b.WriteString(`:"`)
		for _, r := range t.Value {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	return b.String()
}

// ParseFilter splits a filter expression into field/value pairs.
// Both quoted and bare values are accepted.
func ParseFilter(filter string) (map[string]string, error) {
	out := make(map[string]string)
	rest := filter
	for rest != "" {
		field, after, ok := strings.Cut(rest, ":")
		if !ok || field == "" || strings.ContainsAny(field, `,"`) {
			return nil, fmt.Errorf("bad filter %q", rest)
		}

		var value string
		if strings.HasPrefix(after, `"`) {
			var b strings.Builder
			i := 1
			closed := false
			for i < len(after) {
				c := after[i]
				if c == '\\' && i+1 < len(after) {
					b.WriteByte(after[i+1])
					i += 2
					continue
				}
				if c == '"' {
					closed = true
					i++
					break
				}
				b.WriteByte(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated value in filter %q", filter)
			}
			value, rest = b.String(), after[i:]
		} else {
			var more bool
			value, rest, more = strings.Cut(after, ",")
			if more && rest == "" {
				return nil, fmt.Errorf("bad filter %q", filter)
			}
			out[field] = value
			continue
		}

		if rest != "" {
			if rest[0] != ',' || len(rest) == 1 {
				return nil, fmt.Errorf("bad filter %q", filter)
			}
			rest = rest[1:]
		}
		out[field] = value
	}
	return out, nil
}
