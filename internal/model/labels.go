package model

import "time"

// DayNames are the full Japanese weekday names, indexed by time.Weekday.
var DayNames = [7]string{
	"日曜日",
	"月曜日",
	"火曜日",
	"水曜日",
	"木曜日",
	"金曜日",
	"土曜日",
}

// ShortDayNames are single-character weekday names for calendar headers.
var ShortDayNames = [7]string{"日", "月", "火", "水", "木", "金", "土"}

// Icons maps an icon key to its emoji.
var Icons = map[string]string{
	"burn":      "🔥",
	"nonburn":   "🗑️",
	"recycle":   "♻️",
	"plastic":   "🧴",
	"bottle":    "🍾",
	"can":       "🥫",
	"paper":     "📰",
	"cloth":     "👕",
	"oversized": "🛋️",
	"hazardous": "⚠️",
	"battery":   "🔋",
	"other":     "📦",
}

// IconLabels maps an icon key to its category label.
var IconLabels = map[string]string{
	"burn":      "燃えるゴミ",
	"nonburn":   "燃えないゴミ",
	"recycle":   "資源ゴミ",
	"plastic":   "プラスチック",
	"bottle":    "ビン",
	"can":       "缶",
	"paper":     "古紙・ダンボール",
	"cloth":     "古布・衣類",
	"oversized": "粗大ゴミ",
	"hazardous": "有害ゴミ",
	"battery":   "乾電池",
	"other":     "その他",
}

// RuleTypeLabels are the display names of each rule kind.
var RuleTypeLabels = map[RuleType]string{
	RuleWeekly:        "毎週",
	RuleBiweekly:      "隔週",
	RuleNthWeekday:    "第N曜日",
	RuleSpecificDates: "指定日",
}

// DayName returns the Japanese name of d, or "" when out of range.
func DayName(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return DayNames[d]
}

// IconFor returns the emoji for key; unknown keys yield "".
func IconFor(key string) string {
	return Icons[key]
}

// Label renders "icon name", or just the name when the icon is unknown.
func (c TrashCategory) Label() string {
	icon := IconFor(c.Icon)
	if icon == "" {
		return c.Name
	}
	return icon + " " + c.Name
}
