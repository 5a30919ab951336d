package domain

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is a two-letter ISO 639-1 code.
type Language string

var DefaultLanguages = []string{"en", "es", "fr", "de", "ru", "zh", "ja", "ko", "ar", "hi", "it", "pt"}

type LanguageInfo struct {
	Code Language `json:"code"`
	Name string   `json:"name"`
}

// Catalog is the fixed set of languages a deployment accepts.
// It is immutable after construction and safe for concurrent use.
type Catalog struct {
	codes []Language
	names map[string]Language // lower-case english name -> code
}

func NewCatalog(codes []string) (*Catalog, error) {
	c := &Catalog{names: make(map[string]Language, len(codes))}
	namer := display.English.Languages()
	for _, raw := range codes {
		tag, err := language.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, Wrap(KindUnknownLanguage, "invalid language code "+raw, err)
		}
		base, _ := tag.Base()
		code := Language(base.String())
		if c.Contains(code) {
			continue
		}
		c.codes = append(c.codes, code)
		c.names[strings.ToLower(namer.Name(base))] = code
	}
	if len(c.codes) == 0 {
		return nil, Errorf(KindUnknownLanguage, "language list is empty")
	}
	return c, nil
}

// Parse accepts a code exactly from the catalogue, after case/region normalisation
// ("EN", "en-US" -> "en"). Anything else is rejected.
func (c *Catalog) Parse(raw string) (Language, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", Errorf(KindUnknownLanguage, "language is empty")
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", Errorf(KindUnknownLanguage, "unsupported language %q", raw)
	}
	base, _ := tag.Base()
	code := Language(base.String())
	if !c.Contains(code) {
		return "", Errorf(KindUnknownLanguage, "unsupported language %q", raw)
	}
	return code, nil
}

// Detect maps a collaborator-reported language, either a code or an english name
// such as "Spanish", onto the catalogue.
func (c *Catalog) Detect(raw string) (Language, bool) {
	if code, err := c.Parse(raw); err == nil {
		return code, true
	}
	code, ok := c.names[strings.ToLower(strings.TrimSpace(raw))]
	return code, ok
}

func (c *Catalog) Supported() []LanguageInfo {
	namer := display.English.Languages()
	out := make([]LanguageInfo, 0, len(c.codes))
	for _, code := range c.codes {
		out = append(out, LanguageInfo{Code: code, Name: namer.Name(language.Make(string(code)))})
	}
	return out
}

func (c *Catalog) Contains(code Language) bool {
	return slices.Contains(c.codes, code)
}
