package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Rebind converts a query with :name parameters into the driver's
// positional syntax and the matching argument list. Names may repeat;
// each occurrence binds its own positional argument. Text inside single
// quotes passes through untouched, as does the :: cast operator. A
// placeholder with no entry in params is an error.
func Rebind(query string, params map[string]any, style PlaceholderStyle) (string, []any, error) {
	var (
		out      strings.Builder
		args     []any
		inQuote  bool
		position int
	)
	out.Grow(len(query))

	for i := 0; i < len(query); i++ {
		ch := query[i]

		if inQuote {
			out.WriteByte(ch)
			if ch == '\'' {
				// An escaped quote ('') stays inside the literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inQuote = false
			}
			continue
		}

		switch {
		case ch == '\'':
			inQuote = true
			out.WriteByte(ch)

		case ch == ':' && i+1 < len(query) && query[i+1] == ':':
			out.WriteString("::")
			i++

		case ch == ':' && i+1 < len(query) && isNameStart(query[i+1]):
			start := i + 1
			end := start
			for end < len(query) && isNameChar(query[end]) {
				end++
			}
			name := query[start:end]
			value, ok := params[name]
			if !ok {
				return "", nil, fmt.Errorf("unbound query parameter :%s", name)
			}
			position++
			switch style {
			case Dollar:
				out.WriteByte('$')
				out.WriteString(strconv.Itoa(position))
			default:
				out.WriteByte('?')
			}
			args = append(args, value)
			i = end - 1

		default:
			out.WriteByte(ch)
		}
	}

	return out.String(), args, nil
}

func isNameStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isNameChar(ch byte) bool {
	return isNameStart(ch) || (ch >= '0' && ch <= '9')
}
