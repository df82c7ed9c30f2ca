// Package glossary applies user-defined substitutions to a final transcript
// before it is translated, e.g. to fix names the recognizer keeps mishearing.
//
// A glossary file holds one rule per line:
//
//	# comment
//	colour => color
//	s/\bdr\.?\s/doctor /gi
//
//	[hi]
//	नमसते => नमस्ते
//
// Rules above the first section apply to every source language. Rules under
// a [code] header apply only when that language is the source.
package glossary

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"parley/internal/domain"
	"parley/internal/languages"
)

const DefaultIterationLimit = 30

// ErrNotSettled is returned when rules keep rewriting each other.
var ErrNotSettled = errors.New("glossary rules did not settle")

type substitution interface {
	rewrite(input string) (string, bool)
	// repeatable rules take part in every pass, the rest run once.
	repeatable() bool
}

// Glossary implements ports.TranscriptRules.
type Glossary struct {
	common         []substitution
	sections       map[domain.LanguageCode][]substitution
	iterationLimit int
}

// Empty returns a glossary without rules.
func Empty() *Glossary {
	return &Glossary{sections: map[domain.LanguageCode][]substitution{}, iterationLimit: DefaultIterationLimit}
}

// Load reads a glossary file. A blank path or missing file yields an empty
// glossary.
func Load(path string, iterationLimit int) (*Glossary, error) {
	if strings.TrimSpace(path) == "" {
		return withLimit(Empty(), iterationLimit), nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return withLimit(Empty(), iterationLimit), nil
		}
		return nil, fmt.Errorf("open glossary %q: %w", path, err)
	}
	defer file.Close()

	g, err := Parse(file, iterationLimit)
	if err != nil {
		return nil, fmt.Errorf("parse glossary %q: %w", path, err)
	}
	return g, nil
}

// Parse reads glossary rules from r.
func Parse(r io.Reader, iterationLimit int) (*Glossary, error) {
	g := withLimit(Empty(), iterationLimit)
	var section *domain.LanguageCode

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			code, err := languages.Parse(strings.TrimSpace(line[1 : len(line)-1]))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			section = &code
			continue
		}

		rule, err := parseRule(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if section == nil {
			g.common = append(g.common, rule)
		} else {
			g.sections[*section] = append(g.sections[*section], rule)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	return g, nil
}

func withLimit(g *Glossary, limit int) *Glossary {
	if limit > 0 {
		g.iterationLimit = limit
	}
	return g
}

// Len returns the number of rules that apply to source.
func (g *Glossary) Len(source domain.LanguageCode) int {
	return len(g.common) + len(g.sections[source])
}

// Apply runs every rule once in file order, then repeats the sed-style rules
// until none of them changes the text. Phrase rules already replace every
// occurrence, so they are not repeated. When the sed-style rules are still
// changing the text after the iteration limit, the last result is returned
// together with ErrNotSettled.
func (g *Glossary) Apply(text string, source domain.LanguageCode) (string, error) {
	rules := make([]substitution, 0, g.Len(source))
	rules = append(rules, g.common...)
	rules = append(rules, g.sections[source]...)
	if len(rules) == 0 {
		return text, nil
	}

	var repeat []substitution
	for _, rule := range rules {
		if rule.repeatable() {
			repeat = append(repeat, rule)
		}
	}

	result, changed := rewriteAll(text, rules)
	if !changed || len(repeat) == 0 {
		return result, nil
	}
	for pass := 1; pass < g.iterationLimit; pass++ {
		if result, changed = rewriteAll(result, repeat); !changed {
			return result, nil
		}
	}
	return result, fmt.Errorf("%w after %d passes", ErrNotSettled, g.iterationLimit)
}

func rewriteAll(text string, rules []substitution) (string, bool) {
	changed := false
	for _, rule := range rules {
		if next, ok := rule.rewrite(text); ok {
			text = next
			changed = true
		}
	}
	return text, changed
}

func parseRule(line string) (substitution, error) {
	if isRegexRule(line) {
		return parseRegexRule(line)
	}
	if strings.Contains(line, "=>") {
		return parsePhraseRule(line)
	}
	return nil, errors.New("expected `phrase => replacement` or `s/pattern/replacement/flags`")
}

// phraseRule replaces a phrase case-insensitively.
type phraseRule struct {
	re          *regexp.Regexp
	replacement string
}

func parsePhraseRule(line string) (substitution, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("phrase cannot be empty")
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("compile phrase: %w", err)
	}
	return phraseRule{re: re, replacement: strings.TrimSpace(to)}, nil
}

func (r phraseRule) rewrite(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

func (phraseRule) repeatable() bool { return false }

// regexRule is a sed-style substitution. Without the g flag only the first
// match is replaced.
type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func isRegexRule(line string) bool {
	return len(line) > 2 && line[0] == 's' && isDelimiter(line[1])
}

func isDelimiter(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	case c == ' ', c == '\t', c == '\\', c >= 0x80:
		return false
	}
	return true
}

func parseRegexRule(line string) (substitution, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	replacement, flags, err := splitDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("replacement: %w", err)
	}

	rule := regexRule{replacement: replacement}
	var inline strings.Builder
	for _, flag := range strings.TrimSpace(flags) {
		switch flag {
		case 'g':
			rule.global = true
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), flag) {
				inline.WriteRune(flag)
			}
		default:
			return nil, fmt.Errorf("unknown flag %q", flag)
		}
	}
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	rule.re = re
	return rule, nil
}

func (regexRule) repeatable() bool { return true }

func (r regexRule) rewrite(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	match := r.re.FindStringSubmatchIndex(input)
	if match == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, match)
	output := input[:match[0]] + string(expanded) + input[match[1]:]
	return output, output != input
}

// splitDelimited returns the text up to the first unescaped delim and the
// remainder after it. An escaped delimiter loses its backslash.
func splitDelimited(s string, delim byte) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			if s[i+1] == delim {
				b.WriteByte(delim)
			} else {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
			}
			i++
			continue
		}
		if c == delim {
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(c)
	}
	return "", "", errors.New("missing closing delimiter")
}
