package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize strips "-" and "_" separators and title-cases what is left.
// With leaveWhitespace the separators become spaces, otherwise they are dropped.
func Normalize(s string, leaveWhitespace bool) string {
	repl := " "
	if !leaveWhitespace {
		repl = ""
	}
	s = strings.NewReplacer("-", repl, "_", repl).Replace(s)
	if leaveWhitespace {
		s = strings.Join(strings.Fields(s), " ")
	}
	// cases.Caser is stateful, build one per call
	return cases.Title(language.Und).String(s)
}

// Title returns "Title Case".
func Title(s string) string { return Normalize(s, true) }

// Pascal returns "PascalCase".
func Pascal(s string) string { return strings.ReplaceAll(Title(s), " ", "") }

// Camel returns "camelCase".
func Camel(s string) string { return lowerFirst(Pascal(s)) }

// Snake returns "snake_case".
func Snake(s string) string { return strings.ReplaceAll(strings.ToLower(Title(s)), " ", "_") }

// UpperSnake returns "UPPER_SNAKE_CASE".
func UpperSnake(s string) string { return strings.ToUpper(Snake(s)) }

// Kebab returns "kebab-case".
func Kebab(s string) string { return strings.ReplaceAll(strings.ToLower(Title(s)), " ", "-") }

// UpperKebab returns "UPPER-KEBAB-CASE".
func UpperKebab(s string) string { return strings.ToUpper(Kebab(s)) }

// Sentence returns "Sentence case".
func Sentence(s string) string { return upperFirst(strings.ToLower(Title(s))) }

// LowerSentence returns "lower sentence case".
func LowerSentence(s string) string { return strings.ToLower(Title(s)) }

// UpperSentence returns "UPPER SENTENCE CASE".
func UpperSentence(s string) string { return strings.ToUpper(Title(s)) }

// Mutations returns every case style of s, in a fixed order.
func Mutations(s string) []string {
	return []string{
		Camel(s),
		Pascal(s),
		Snake(s),
		UpperSnake(s),
		Kebab(s),
		UpperKebab(s),
		Sentence(s),
		LowerSentence(s),
		UpperSentence(s),
		Title(s),
	}
}

// FieldName converts a remote field name ("CaseId", "createdDate", "URLPath")
// into the snake_case name used in the local store.
func FieldName(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return Snake(b.String())
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
