package feeder

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// SubstitutePlaceholders replaces {{field}} in template with the record's value.
// Placeholders naming a field the record lacks are left unchanged.
func SubstitutePlaceholders(template string, record Record) string {
	if template == "" || len(record) == 0 {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := record[name]; ok {
			return value
		}
		return match
	})
}
