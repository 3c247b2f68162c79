package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// IntentKind discriminates which grammar family matched.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentRelative
	IntentClock
	IntentCalendarDate
	IntentMonthlyDay
)

// Intent is the structured result of parsing one chat message.
// FireAt/TargetDate are resolved against the "now" passed to Parse, with
// forward rolling (tomorrow, next year) when the naive computation would
// land in the past.
type Intent struct {
	Kind    IntentKind
	Content string

	Offset       time.Duration // relative
	Hour, Minute int           // clock
	Month, Day   int           // calendar (month+day) / monthly (day)

	FireAt     time.Time // relative + clock
	TargetDate time.Time // calendar
	TimeText   string    // display text for the matched time phrase
}

// Matched reports whether any grammar family accepted the text.
func (in Intent) Matched() bool { return in.Kind != IntentNone }

// grammarRule is one named pattern tried in fixed priority order.
// build returns (intent, true) on a full match with valid bounds; a bounds
// failure rejects only this rule and parsing continues with the next one.
type grammarRule struct {
	name  string
	re    *regexp.Regexp
	build func(m []string, now time.Time) (Intent, bool)
}

// Within each family the time-before-content pattern is tried first.
var grammarRules = []grammarRule{
	// 1. Relative offset: 1小時30分鐘後開會 / 5分鐘後倒垃圾 / 30秒後關火,
	//    and the content-first forms 開會1小時30分鐘後 etc.
	{"rel-hours-first", regexp.MustCompile(`^(\d+)小時(?:(\d+)分鐘)?後(.+)$`),
		func(m []string, now time.Time) (Intent, bool) {
			h, _ := strconv.Atoi(m[1])
			min := 0
			if m[2] != "" {
				min, _ = strconv.Atoi(m[2])
			}
			return buildRelative(h, min, m[3], now)
		}},
	{"rel-minutes-first", regexp.MustCompile(`^(\d+)分鐘後(.+)$`),
		func(m []string, now time.Time) (Intent, bool) {
			min, _ := strconv.Atoi(m[1])
			return buildRelative(0, min, m[2], now)
		}},
	{"rel-seconds-first", regexp.MustCompile(`^(\d+)秒後(.+)$`),
		func(m []string, now time.Time) (Intent, bool) {
			sec, _ := strconv.Atoi(m[1])
			return buildRelativeSeconds(sec, m[2], now)
		}},
	{"rel-hours-last", regexp.MustCompile(`^(.+?)(\d+)小時(?:(\d+)分鐘)?後$`),
		func(m []string, now time.Time) (Intent, bool) {
			h, _ := strconv.Atoi(m[2])
			min := 0
			if m[3] != "" {
				min, _ = strconv.Atoi(m[3])
			}
			return buildRelative(h, min, m[1], now)
		}},
	{"rel-minutes-last", regexp.MustCompile(`^(.+?)(\d+)分鐘後$`),
		func(m []string, now time.Time) (Intent, bool) {
			min, _ := strconv.Atoi(m[2])
			return buildRelative(0, min, m[1], now)
		}},
	{"rel-seconds-last", regexp.MustCompile(`^(.+?)(\d+)秒後$`),
		func(m []string, now time.Time) (Intent, bool) {
			sec, _ := strconv.Atoi(m[2])
			return buildRelativeSeconds(sec, m[1], now)
		}},

	// 2. Absolute clock time: 12:00倒垃圾 / 倒垃圾12:00.
	{"clock-time-first", regexp.MustCompile(`^(\d{1,2}):(\d{2})(.+)$`),
		func(m []string, now time.Time) (Intent, bool) {
			h, _ := strconv.Atoi(m[1])
			min, _ := strconv.Atoi(m[2])
			return buildClock(h, min, m[3], now)
		}},
	{"clock-time-last", regexp.MustCompile(`^(.+?)(\d{1,2}):(\d{2})$`),
		func(m []string, now time.Time) (Intent, bool) {
			h, _ := strconv.Atoi(m[2])
			min, _ := strconv.Atoi(m[3])
			return buildClock(h, min, m[1], now)
		}},

	// 3. Month/day calendar date: 8/9號繳卡費 / 繳卡費8/9號.
	{"date-time-first", regexp.MustCompile(`^(\d{1,2})/(\d{1,2})號?(.+)$`),
		func(m []string, now time.Time) (Intent, bool) {
			mo, _ := strconv.Atoi(m[1])
			d, _ := strconv.Atoi(m[2])
			return buildCalendar(mo, d, m[3], now)
		}},
	{"date-time-last", regexp.MustCompile(`^(.+?)(\d{1,2})/(\d{1,2})號?$`),
		func(m []string, now time.Time) (Intent, bool) {
			mo, _ := strconv.Atoi(m[2])
			d, _ := strconv.Atoi(m[3])
			return buildCalendar(mo, d, m[1], now)
		}},

	// 4. Monthly day-of-month: (每月)?5號繳卡費 / 繳卡費(每月)?5號.
	{"monthly-day-first", regexp.MustCompile(`^(?:每月)?(\d{1,2})號(.+)$`),
		func(m []string, now time.Time) (Intent, bool) {
			d, _ := strconv.Atoi(m[1])
			return buildMonthly(d, m[2])
		}},
	{"monthly-day-last", regexp.MustCompile(`^(.+?)(?:每月)?(\d{1,2})號$`),
		func(m []string, now time.Time) (Intent, bool) {
			d, _ := strconv.Atoi(m[2])
			return buildMonthly(d, m[1])
		}},
}

// Parse tries each grammar family in fixed priority order and returns the
// first match. It never fails: unparseable text yields an IntentNone result.
// now must already be in the system timezone.
func Parse(text string, now time.Time) Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{}
	}
	for _, rule := range grammarRules {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if in, ok := rule.build(m, now); ok {
			return in
		}
	}
	return Intent{}
}

const maxRelativeMinutes = 1440 // 24h

func buildRelative(hours, minutes int, content string, now time.Time) (Intent, bool) {
	content = strings.TrimSpace(content)
	total := hours*60 + minutes
	if content == "" || total <= 0 || total > maxRelativeMinutes {
		return Intent{}, false
	}
	off := time.Duration(total) * time.Minute
	return Intent{
		Kind:     IntentRelative,
		Content:  content,
		Offset:   off,
		FireAt:   now.Add(off),
		TimeText: relativeTimeText(hours, minutes),
	}, true
}

func buildRelativeSeconds(seconds int, content string, now time.Time) (Intent, bool) {
	content = strings.TrimSpace(content)
	if content == "" || seconds < 10 || seconds > 3600 {
		return Intent{}, false
	}
	off := time.Duration(seconds) * time.Second
	return Intent{
		Kind:     IntentRelative,
		Content:  content,
		Offset:   off,
		FireAt:   now.Add(off),
		TimeText: fmt.Sprintf("%d秒", seconds),
	}, true
}

func buildClock(hour, minute int, content string, now time.Time) (Intent, bool) {
	content = strings.TrimSpace(content)
	if content == "" || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Intent{}, false
	}
	fireAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	// A clock time at or before the current minute means tomorrow.
	if !fireAt.After(now) {
		fireAt = fireAt.AddDate(0, 0, 1)
	}
	return Intent{
		Kind:     IntentClock,
		Content:  content,
		Hour:     hour,
		Minute:   minute,
		FireAt:   fireAt,
		TimeText: fmt.Sprintf("%02d:%02d", hour, minute),
	}, true
}

func buildCalendar(month, day int, content string, now time.Time) (Intent, bool) {
	content = strings.TrimSpace(content)
	if content == "" || month < 1 || month > 12 || day < 1 || day > 31 {
		return Intent{}, false
	}
	// Day is never cross-checked against days-in-month; 2/30 is accepted and
	// normalized forward by the calendar (to 3/2).
	target := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if target.Before(today) {
		target = target.AddDate(1, 0, 0)
	}
	return Intent{
		Kind:       IntentCalendarDate,
		Content:    content,
		Month:      month,
		Day:        day,
		TargetDate: target,
		TimeText:   fmt.Sprintf("%d/%d", month, day),
	}, true
}

func buildMonthly(day int, content string) (Intent, bool) {
	content = strings.TrimSpace(content)
	if content == "" || day < 1 || day > 31 {
		return Intent{}, false
	}
	return Intent{
		Kind:     IntentMonthlyDay,
		Content:  content,
		Day:      day,
		TimeText: fmt.Sprintf("每月%d號", day),
	}, true
}

func relativeTimeText(hours, minutes int) string {
	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%d小時%d分鐘", hours, minutes)
		}
		return fmt.Sprintf("%d小時", hours)
	}
	return fmt.Sprintf("%d分鐘", minutes)
}

// ValidHHMM reports whether s is a valid HH:MM time-of-day string.
func ValidHHMM(s string) bool {
	_, _, err := ParseHHMM(s)
	return err == nil
}

// ParseHHMM splits an HH:MM string into hour and minute.
func ParseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// FormatRemaining renders the time left until fireAt in whole minutes, or
// hours+minutes once the remainder reaches an hour.
func FormatRemaining(fireAt, now time.Time) string {
	d := fireAt.Sub(now)
	if d <= 0 {
		return "已過期"
	}
	mins := int((d + time.Minute - 1) / time.Minute)
	h := mins / 60
	m := mins % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d小時%d分鐘", h, m)
	case h > 0:
		return fmt.Sprintf("%d小時", h)
	default:
		return fmt.Sprintf("%d分鐘", m)
	}
}
