// Package lang parses the language hint passed to the speech and text
// collaborators.
package lang

import (
	"fmt"
	"strings"
)

// Code is a normalized language tag such as "en", "fr" or "pt-br".
// The zero value means auto-detect.
type Code string

// names holds the display names of supported base languages and a few
// common regional variants. A base code absent from this table is rejected.
var names = map[string]string{
	"af": "Afrikaans", "ar": "Arabic", "bg": "Bulgarian", "bn": "Bengali",
	"ca": "Catalan", "cs": "Czech", "da": "Danish", "de": "German",
	"el": "Greek", "en": "English", "es": "Spanish", "et": "Estonian",
	"fa": "Persian", "fi": "Finnish", "fr": "French", "gu": "Gujarati",
	"he": "Hebrew", "hi": "Hindi", "hr": "Croatian", "hu": "Hungarian",
	"id": "Indonesian", "it": "Italian", "ja": "Japanese", "kn": "Kannada",
	"ko": "Korean", "lt": "Lithuanian", "lv": "Latvian", "mk": "Macedonian",
	"ml": "Malayalam", "mr": "Marathi", "ms": "Malay", "nl": "Dutch",
	"no": "Norwegian", "pa": "Punjabi", "pl": "Polish", "pt": "Portuguese",
	"ro": "Romanian", "ru": "Russian", "sk": "Slovak", "sl": "Slovenian",
	"sr": "Serbian", "sv": "Swedish", "sw": "Swahili", "ta": "Tamil",
	"te": "Telugu", "th": "Thai", "tl": "Tagalog", "tr": "Turkish",
	"uk": "Ukrainian", "ur": "Urdu", "vi": "Vietnamese", "zh": "Chinese",

	"en-us": "American English", "en-gb": "British English",
	"fr-ca": "Canadian French", "pt-br": "Brazilian Portuguese",
	"zh-cn": "Simplified Chinese", "zh-tw": "Traditional Chinese",
}

// Parse normalizes s ("pt_BR", "PT-br" -> "pt-br") and checks that its base
// language is known. An empty string parses to the zero Code.
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	c := Code(strings.ToLower(strings.ReplaceAll(s, "_", "-")))
	if _, ok := names[c.Base()]; !ok {
		return "", fmt.Errorf("%w: %q (use ISO 639-1 codes like 'en', 'fr', 'pt-BR')", ErrInvalid, s)
	}
	return c, nil
}

// Base returns the ISO 639-1 part ("pt-br" -> "pt"), which is all the
// transcription API accepts.
func (c Code) Base() string {
	base, _, _ := strings.Cut(string(c), "-")
	return base
}

// IsZero reports whether c means auto-detect.
func (c Code) IsZero() bool {
	return c == ""
}

// Name returns a display name, falling back to the base language and then
// to the code itself.
func (c Code) Name() string {
	if n, ok := names[string(c)]; ok {
		return n
	}
	if n, ok := names[c.Base()]; ok {
		return n
	}
	return string(c)
}

// UsesCJKPunctuation reports whether sentences end with full-width marks.
func (c Code) UsesCJKPunctuation() bool {
	switch c.Base() {
	case "zh", "ja":
		return true
	}
	return false
}
