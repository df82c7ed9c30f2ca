package domain

// LanguageCode is a short identifier for a supported human language.
type LanguageCode string

const (
	LanguageEnglish LanguageCode = "en"
	LanguageHindi   LanguageCode = "hi"
	LanguageMarathi LanguageCode = "mr"
	LanguageArabic  LanguageCode = "ar"
)
