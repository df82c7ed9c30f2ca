// Package languages holds the static table of supported languages and the
// locales the speech adapters need for each of them.
package languages

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"parley/internal/domain"
)

// DefaultLocale is used for codes without a mapping.
const DefaultLocale = "en-US"

// Option describes one language for the selectors.
type Option struct {
	Code domain.LanguageCode `json:"code"`
	Name string              `json:"name"`
	Flag string              `json:"flag"`
}

type entry struct {
	name            string
	flag            string
	captureLocale   string
	synthesisLocale string
}

var catalog = map[domain.LanguageCode]entry{
	domain.LanguageEnglish: {name: "English", flag: "🇺🇸", captureLocale: "en-US", synthesisLocale: "en-US"},
	domain.LanguageHindi:   {name: "Hindi", flag: "🇮🇳", captureLocale: "hi-IN", synthesisLocale: "hi-IN"},
	domain.LanguageMarathi: {name: "Marathi", flag: "🇮🇳", captureLocale: "mr-IN", synthesisLocale: "mr-IN"},
	domain.LanguageArabic:  {name: "Arabic", flag: "🇸🇦", captureLocale: "ar-SA", synthesisLocale: "ar-SA"},
}

// selector order
var ordered = []domain.LanguageCode{
	domain.LanguageEnglish,
	domain.LanguageHindi,
	domain.LanguageMarathi,
	domain.LanguageArabic,
}

// Supported returns the supported codes in display order.
func Supported() []domain.LanguageCode {
	out := make([]domain.LanguageCode, len(ordered))
	copy(out, ordered)
	return out
}

// Options returns display metadata for every supported language.
func Options() []Option {
	options := make([]Option, 0, len(ordered))
	for _, code := range ordered {
		e := catalog[code]
		options = append(options, Option{Code: code, Name: e.name, Flag: e.flag})
	}
	return options
}

// IsSupported reports whether code is part of the fixed set.
func IsSupported(code domain.LanguageCode) bool {
	_, ok := catalog[code]
	return ok
}

// CaptureLocale returns the recognizer locale for code.
func CaptureLocale(code domain.LanguageCode) string {
	if e, ok := catalog[code]; ok {
		return e.captureLocale
	}
	return DefaultLocale
}

// SynthesisLocale returns the text-to-speech locale for code.
func SynthesisLocale(code domain.LanguageCode) string {
	if e, ok := catalog[code]; ok {
		return e.synthesisLocale
	}
	return DefaultLocale
}

// Name returns the English display name, or the upper-cased code when unknown.
func Name(code domain.LanguageCode) string {
	if e, ok := catalog[code]; ok {
		return e.name
	}
	return strings.ToUpper(string(code))
}

// Parse accepts a code or a BCP-47 tag ("hi", "hi-IN", "HI_in") and returns
// the supported LanguageCode for its base language.
func Parse(raw string) (domain.LanguageCode, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, "_", "-"))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty language", domain.ErrUnsupportedLanguage)
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, raw)
	}
	base, _ := tag.Base()
	code := domain.LanguageCode(base.String())
	if !IsSupported(code) {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, raw)
	}
	return code, nil
}
