package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"parts-assistant/internal/catalog"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	inDaysRe = regexp.MustCompile(`^(?:em|daqui a|dentro de)\s+(\d{1,3})\s+dias?$`)

	weekdays = map[string]time.Weekday{
		"domingo": time.Sunday,
		"segunda": time.Monday,
		"terca":   time.Tuesday,
		"quarta":  time.Wednesday,
		"quinta":  time.Thursday,
		"sexta":   time.Friday,
		"sabado":  time.Saturday,
	}

	weekdayFillers = map[string]bool{
		"na": true, "no": true, "nesta": true, "neste": true, "esta": true, "este": true,
		"proxima": true, "proximo": true, "a": true, "o": true, "dia": true,
	}

	whenParser = newWhenParser()
)

func newWhenParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ResolveDate turns a date expression into a calendar date in now's
// location. It accepts ISO dates, dd/mm/yyyy, dd/mm, Portuguese relative
// words (hoje, amanhã, depois de amanhã, em N dias, weekday names) and
// English expressions. Ambiguous expressions resolve to the future. An
// empty or unreadable expression yields today.
func ResolveDate(expr string, now time.Time) time.Time {
	today := startOfDay(now)
	s := strings.TrimSpace(expr)
	if s == "" {
		return today
	}

	loc := now.Location()
	for _, layout := range []string{time.DateOnly, "02/01/2006", "2/1/2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	for _, layout := range []string{"02/01", "2/1"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			d := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
			if d.Before(today) {
				d = d.AddDate(1, 0, 0)
			}
			return d
		}
	}

	if t, ok := portugueseDate(s, today); ok {
		return t
	}
	if t, ok := englishDate(s, now, today); ok {
		return t
	}
	return today
}

func portugueseDate(expr string, today time.Time) (time.Time, bool) {
	s := strings.Trim(strings.ToLower(catalog.Normalize(expr)), ".!?")

	switch s {
	case "hoje":
		return today, true
	case "amanha":
		return today.AddDate(0, 0, 1), true
	case "depois de amanha":
		return today.AddDate(0, 0, 2), true
	}

	if m := inDaysRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDate(0, 0, n), true
	}

	var words []string
	for _, w := range strings.Fields(s) {
		if !weekdayFillers[w] {
			words = append(words, w)
		}
	}
	name := strings.Join(words, " ")
	name = strings.TrimSuffix(strings.TrimSuffix(name, "-feira"), " feira")
	if wd, ok := weekdays[name]; ok {
		days := (int(wd) - int(today.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days), true
	}

	return time.Time{}, false
}

func englishDate(expr string, now, today time.Time) (time.Time, bool) {
	r, err := whenParser.Parse(expr, now)
	if err != nil || r == nil {
		return time.Time{}, false
	}

	t := startOfDay(r.Time.In(now.Location()))
	if t.Before(today) && today.Sub(t) < 7*24*time.Hour {
		t = t.AddDate(0, 0, 7)
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
