package expression

import (
	"reflect"
	"testing"
)

func TestParseEmpty(t *testing.T) {
	q := Parse("")
	if len(q.Elements) != 0 {
		t.Fatalf("expected empty element list, got %#v", q.Elements)
	}
}

func TestParseDelimiters(t *testing.T) {
	q := Parse("()")
	want := []Element{Delimiter{Text: "()"}}
	if !reflect.DeepEqual(q.Elements, want) {
		t.Fatalf("got %#v, want %#v", q.Elements, want)
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		input string
		want  []Element
	}{
		{"#foo", []Element{NoirTag{Name: "foo"}}},
		{"#bang!", []Element{NoirTag{Name: "bang!"}}},
		{"#hoge ", []Element{NoirTag{Name: "hoge"}, Delimiter{Text: " "}}},
		// A hash with no body is just part of a term.
		{"# ", []Element{Term{Text: "#"}, Delimiter{Text: " "}}},
		{"#(", []Element{Term{Text: "#"}, Delimiter{Text: "("}}},
	}
	for _, tt := range tests {
		q := Parse(tt.input)
		if !reflect.DeepEqual(q.Elements, tt.want) {
			t.Errorf("Parse(%q) = %#v, want %#v", tt.input, q.Elements, tt.want)
		}
	}
}

func TestParseStringLiteral(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"'cat'", "cat"},
		{"'A'", "A"},
		{"''''", "'"},
		{"'A'''", "A'"},
		{"'A''B'", "A'B"},
		{"'A''B''C'", "A'B'C"},
		{"'A''B''''C'", "A'B''C"},
	}
	for _, tt := range tests {
		q := Parse(tt.input)
		if len(q.Elements) != 1 {
			t.Errorf("Parse(%q) = %#v, want one element", tt.input, q.Elements)
			continue
		}
		lit, ok := q.Elements[0].(StringLiteral)
		if !ok || lit.Text != tt.want {
			t.Errorf("Parse(%q) = %#v, want StringLiteral(%q)", tt.input, q.Elements[0], tt.want)
		}
	}
}

func TestParseStringLiteralWithRest(t *testing.T) {
	q := Parse("'A''B''''C'RR")
	want := []Element{StringLiteral{Text: "A'B''C"}, Term{Text: "RR"}}
	if !reflect.DeepEqual(q.Elements, want) {
		t.Fatalf("got %#v, want %#v", q.Elements, want)
	}
}

func TestParseQuotedParenthesis(t *testing.T) {
	// Empty literal between bare parentheses.
	q := Parse("('')")
	want := []Element{
		Delimiter{Text: "("},
		StringLiteral{Text: ""},
		Delimiter{Text: ")"},
	}
	if !reflect.DeepEqual(q.Elements, want) {
		t.Fatalf("got %#v, want %#v", q.Elements, want)
	}

	// A quoted apostrophe between bare parentheses.
	q = Parse("('''')")
	want = []Element{
		Delimiter{Text: "("},
		StringLiteral{Text: "'"},
		Delimiter{Text: ")"},
	}
	if !reflect.DeepEqual(q.Elements, want) {
		t.Fatalf("got %#v, want %#v", q.Elements, want)
	}

	// Parenthesis inside a literal stays literal.
	q = Parse("'('')'")
	want = []Element{StringLiteral{Text: "(')"}}
	if !reflect.DeepEqual(q.Elements, want) {
		t.Fatalf("got %#v, want %#v", q.Elements, want)
	}
}

func TestParsePathSegment(t *testing.T) {
	q := Parse("`holiday/2024`")
	want := []Element{PathSegment{Text: "holiday/2024"}}
	if !reflect.DeepEqual(q.Elements, want) {
		t.Fatalf("got %#v, want %#v", q.Elements, want)
	}
}

func TestParseTerm(t *testing.T) {
	tests := []struct {
		input string
		want  []Element
	}{
		{"cat-dog", []Element{Term{Text: "cat-dog"}}},
		{"cat", []Element{Term{Text: "cat"}}},
		{"cat and dog", []Element{
			Term{Text: "cat"}, Delimiter{Text: " "},
			Term{Text: "and"}, Delimiter{Text: " "},
			Term{Text: "dog"},
		}},
		// Interior quotes belong to the term; literals apply only at a
		// token boundary.
		{"don't", []Element{Term{Text: "don't"}}},
	}
	for _, tt := range tests {
		q := Parse(tt.input)
		if !reflect.DeepEqual(q.Elements, tt.want) {
			t.Errorf("Parse(%q) = %#v, want %#v", tt.input, q.Elements, tt.want)
		}
	}
}

func TestRenderRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"()",
		"#hoge and width > 100",
		"'A''B''''C'RR",
		"`pics/2024` and (#cats or #dogs)",
		"dist(dhash, 'ffffffffffffffff') < 5",
		"match('*.png', path)",
		"  \t\r\n mixed <>= runs",
		"'unterminated",
		"`unterminated",
		"日本語 #タグ 'リテラル'",
	}
	for _, s := range inputs {
		if got := Parse(s).Render(); got != s {
			t.Errorf("round trip of %q produced %q", s, got)
		}
	}
}

func TestReplaceTag(t *testing.T) {
	q, ok := ReplaceTag(Parse("#a and #b"), "z")
	if !ok {
		t.Fatal("expected a replacement")
	}
	if got := q.Render(); got != "#z and #b" {
		t.Fatalf("got %q, want %q", got, "#z and #b")
	}

	if _, ok := ReplaceTag(Parse("no tags here"), "z"); ok {
		t.Fatal("expected no replacement")
	}
}

func TestLiteral(t *testing.T) {
	if got := Literal("a'b"); got != "'a''b'" {
		t.Fatalf("got %q", got)
	}
	if got := Literal(""); got != "''" {
		t.Fatalf("got %q", got)
	}
}
