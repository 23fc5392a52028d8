package coach

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Supported output languages, first one is the default.
var Supported = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Portuguese,
	language.Dutch,
	language.Polish,
	language.Turkish,
	language.Indonesian,
}

var matcher = language.NewMatcher(Supported)

// MatchLanguage resolves a client supplied tag or Accept-Language value to
// one of the supported languages.
func MatchLanguage(raw string) language.Tag {
	if t, ok := match(raw); ok {
		return t
	}
	return Supported[0]
}

// MatchSupported is MatchLanguage without the English default: it returns
// "" when raw names no supported language.
func MatchSupported(raw string) string {
	if t, ok := match(raw); ok {
		return t.String()
	}
	return ""
}

func match(raw string) (language.Tag, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return language.Und, false
	}
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return language.Und, false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.Und, false
	}
	return Supported[idx], true
}

// LanguageName is the English name of the language used in prompts.
func LanguageName(tag string) string {
	t := MatchLanguage(tag)
	name := display.English.Languages().Name(t)
	if name == "" {
		return "English"
	}
	return name
}

// LanguageOption is one entry of the settings page picker.
type LanguageOption struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
	// Native is the name in the language itself.
	Native string `json:"native"`
}

// Languages lists the supported output languages.
func Languages() []LanguageOption {
	out := make([]LanguageOption, 0, len(Supported))
	for _, t := range Supported {
		out = append(out, LanguageOption{
			Tag:    t.String(),
			Name:   display.English.Languages().Name(t),
			Native: display.Self.Name(t),
		})
	}
	return out
}
