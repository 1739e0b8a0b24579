package ieee

import (
	"fmt"
	"strings"
	"time"
)

// quarterStarts maps a quarter label to the first day of that quarter
var quarterStarts = map[string]string{
	"first":  "1 January",
	"second": "1 April",
	"third":  "1 July",
	"fourth": "1 October",
}

// dateLayouts are the publication date shapes seen on article pages
var dateLayouts = []string{
	"2 January 2006",
	"02 January 2006",
	"2 Jan. 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan. 2, 2006",
	"January 2006",
	"Jan. 2006",
	"2006-01-02",
}

// ExpandQuarter rewrites a quarter label such as "Fourth Quarter 2021" to the
// first day of that quarter ("1 October 2021"). The year is the third
// whitespace-separated token. Other strings are returned unchanged with false.
func ExpandQuarter(raw string) (string, bool) {
	tokens := strings.Fields(raw)
	if len(tokens) < 3 {
		return raw, false
	}

	for _, token := range tokens {
		if start, ok := quarterStarts[strings.ToLower(token)]; ok {
			return fmt.Sprintf("%s %s", start, tokens[2]), true
		}
	}

	return raw, false
}

// NormalizeDate resolves a raw publication date to midnight UTC
func NormalizeDate(raw string) (time.Time, error) {
	value := strings.Join(strings.Fields(raw), " ")
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	value, _ = ExpandQuarter(value)

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}
