package expression

import "strings"

// delimiters separate terms and pass through to the compiled SQL verbatim.
const delimiters = "\t \r\n()<>="

// tagStop terminates a noir tag body.
const tagStop = "\"() \t\r\n"

func isDelimiter(r rune) bool { return strings.ContainsRune(delimiters, r) }

// Parse tokenises input. The parse is total: unterminated literals fall
// back to terms and anything else becomes an Any element, so
// Parse(s).Render() == s for every s.
func Parse(input string) Query {
	rs := []rune(input)
	var elements []Element

	i := 0
	for i < len(rs) {
		switch {
		case rs[i] == '#':
			if name, next, ok := scanTag(rs, i); ok {
				elements = append(elements, NoirTag{Name: name})
				i = next
				continue
			}
		case rs[i] == '`':
			if text, next, ok := scanPathSegment(rs, i); ok {
				elements = append(elements, PathSegment{Text: text})
				i = next
				continue
			}
		case rs[i] == '\'':
			if text, next, ok := scanStringLiteral(rs, i); ok {
				elements = append(elements, StringLiteral{Text: text})
				i = next
				continue
			}
		}

		if isDelimiter(rs[i]) {
			j := i
			for j < len(rs) && isDelimiter(rs[j]) {
				j++
			}
			elements = append(elements, Delimiter{Text: string(rs[i:j])})
			i = j
			continue
		}

		// Term: a run of non-delimiters. Quotes and hashes inside a term
		// are plain characters; the literal forms only apply at a token
		// boundary.
		j := i
		for j < len(rs) && !isDelimiter(rs[j]) {
			j++
		}
		if j > i {
			elements = append(elements, Term{Text: string(rs[i:j])})
			i = j
			continue
		}

		elements = append(elements, Any{Char: rs[i]})
		i++
	}

	return Query{Elements: elements}
}

// scanTag reads '#' plus a non-empty body of characters outside tagStop.
func scanTag(rs []rune, i int) (string, int, bool) {
	j := i + 1
	for j < len(rs) && !strings.ContainsRune(tagStop, rs[j]) {
		j++
	}
	if j == i+1 {
		return "", 0, false
	}
	return string(rs[i+1 : j]), j, true
}

// scanPathSegment reads a backtick-delimited fragment.
func scanPathSegment(rs []rune, i int) (string, int, bool) {
	for j := i + 1; j < len(rs); j++ {
		if rs[j] == '`' {
			return string(rs[i+1 : j]), j + 1, true
		}
	}
	return "", 0, false
}

// scanStringLiteral reads a single-quoted literal where '' is an escaped
// apostrophe. Returns the decoded text.
func scanStringLiteral(rs []rune, i int) (string, int, bool) {
	var b strings.Builder
	j := i + 1
	for j < len(rs) {
		if rs[j] != '\'' {
			b.WriteRune(rs[j])
			j++
			continue
		}
		if j+1 < len(rs) && rs[j+1] == '\'' {
			b.WriteByte('\'')
			j += 2
			continue
		}
		return b.String(), j + 1, true
	}
	return "", 0, false
}
