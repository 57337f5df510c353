package billing

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultConceptPrefix starts every generated recurring concept
const DefaultConceptPrefix = "Recurring fee"

var monthNames = map[language.Tag][12]string{
	language.English: {"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"},
	language.Spanish: {"enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
	language.Portuguese: {"janeiro", "fevereiro", "março", "abril", "maio", "junho",
		"julho", "agosto", "setembro", "outubro", "novembro", "dezembro"},
	language.French: {"janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre"},
}

var supportedLocales = []language.Tag{language.English, language.Spanish, language.Portuguese, language.French}

var localeMatcher = language.NewMatcher(supportedLocales)

// ConceptFormatter renders the concept line of generated recurring invoices
type ConceptFormatter struct {
	prefix string
	tag    language.Tag
}

// NewConceptFormatter creates a formatter for a BCP 47 locale such as "es-CO".
// Unknown locales fall back to English.
func NewConceptFormatter(prefix, locale string) ConceptFormatter {
	if prefix == "" {
		prefix = DefaultConceptPrefix
	}
	tag := language.English
	if requested, err := language.Parse(locale); err == nil {
		_, idx, _ := localeMatcher.Match(requested)
		tag = supportedLocales[idx]
	}
	return ConceptFormatter{prefix: prefix, tag: tag}
}

// MonthLabel returns e.g. "Febrero 2024" for es
func (f ConceptFormatter) MonthLabel(month time.Time) string {
	name := monthNames[f.tag][month.Month()-1]
	// Casers are stateful, so one is built per call.
	return fmt.Sprintf("%s %d", cases.Title(f.tag).String(name), month.Year())
}

// Format returns the concept for month
func (f ConceptFormatter) Format(month time.Time) string {
	return fmt.Sprintf("%s — %s", f.prefix, f.MonthLabel(month))
}
