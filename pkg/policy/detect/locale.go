package detect

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/language"
)

// commaDecimal lists base languages that write 1.234,5 for 1234.5.
var commaDecimal = map[string]bool{
	"de": true, "fr": true, "es": true, "it": true, "pt": true, "nl": true,
	"ru": true, "pl": true, "tr": true, "sv": true, "da": true, "fi": true,
	"nb": true, "no": true, "cs": true, "id": true, "uk": true, "ro": true,
}

// dayFirstEnglish lists English regions that write dates day first.
var dayFirstEnglish = map[string]bool{
	"GB": true, "AU": true, "NZ": true, "IE": true, "IN": true, "ZA": true,
}

// yearFirst lists base languages whose numeric dates lead with the year.
var yearFirst = map[string]bool{"ja": true, "zh": true, "ko": true, "hu": true, "lt": true}

var dayFirstLayouts = []string{
	"02/01/2006", "2/1/2006", "02.01.2006", "2.1.2006", "02-01-2006",
	"02/01/2006 15:04", "02.01.2006 15:04", "02/01/2006 15:04:05", "02.01.2006 15:04:05",
}

type localeInfo struct {
	commaDecimal bool
	dayFirst     bool
}

func parseLocale(tag string) localeInfo {
	t, err := language.Parse(tag)
	if err != nil {
		return localeInfo{}
	}
	base, _ := t.Base()
	region, _ := t.Region()

	info := localeInfo{commaDecimal: commaDecimal[base.String()]}
	switch {
	case base.String() == "en":
		info.dayFirst = dayFirstEnglish[region.String()]
	case yearFirst[base.String()]:
		info.dayFirst = false
	default:
		info.dayFirst = true
	}
	return info
}

// ParseNumber reads a number from a Go numeric value or a locale formatted
// string. NaN is rejected since it compares false against every threshold.
func ParseNumber(v any, locale string) (float64, error) {
	f, err := parseNumber(v, locale)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("NaN is not a comparable number")
	}
	return f, nil
}

func parseNumber(v any, locale string) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case fmt.Stringer:
		return parseNumberString(n.String(), locale)
	case string:
		return parseNumberString(n, locale)
	}
	return 0, fmt.Errorf("value of type %T is not numeric", v)
}

func parseNumberString(s, locale string) (float64, error) {
	s = strings.TrimSpace(Normalize(s))
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	// NFKC has already mapped no-break and narrow spaces to ' '.
	s = strings.NewReplacer(" ", "", "'", "", "_", "").Replace(s)
	if parseLocale(locale).commaDecimal {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number in locale %q", s, locale)
	}
	return f, nil
}

// ParseDate reads a timestamp from a time.Time, unix seconds, or a string in
// any common format. Ambiguous numeric dates follow the locale's order.
// It never panics.
func ParseDate(v any, locale string) (t time.Time, err error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case *time.Time:
		if d == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *d, nil
	case int, int64, float64:
		secs, _ := ParseNumber(d, "")
		return time.Unix(int64(secs), 0).UTC(), nil
	case string:
		return parseDateString(d, locale)
	}
	return time.Time{}, fmt.Errorf("value of type %T is not a date", v)
}

func parseDateString(s, locale string) (t time.Time, err error) {
	s = strings.TrimSpace(Normalize(s))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	if parseLocale(locale).dayFirst {
		for _, layout := range dayFirstLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			t, err = time.Time{}, fmt.Errorf("unparseable date %q", s)
		}
	}()
	t, err = dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", s, err)
	}
	return t, nil
}
