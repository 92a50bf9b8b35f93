package main

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// displayLabel turns a class or model identifier such as "non_happy" into
// "Non Happy" for summary tables.
func displayLabel(label string) string {
	label = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(label))
	if label == "" {
		return ""
	}
	return cases.Title(language.Und).String(label)
}
