package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trashcal/internal/model"
	"trashcal/internal/schedule"
)

const cityFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//city//waste//EN
BEGIN:VEVENT
UID:burn@city
DTSTAMP:20260101T000000Z
DTSTART;VALUE=DATE:20260203
SUMMARY:燃えるゴミ
RRULE:FREQ=WEEKLY;BYDAY=TU
EXDATE;VALUE=DATE:20260210
END:VEVENT
BEGIN:VEVENT
UID:burn@city
DTSTAMP:20260101T000000Z
RECURRENCE-ID;VALUE=DATE:20260217
DTSTART;VALUE=DATE:20260218
SUMMARY:燃えるゴミ
END:VEVENT
BEGIN:VEVENT
UID:big@city
DTSTAMP:20260101T000000Z
DTSTART;VALUE=DATE:20260221
SUMMARY:粗大ゴミ
END:VEVENT
BEGIN:VEVENT
UID:can@city
DTSTAMP:20260101T000000Z
DTSTART:20260225T063000Z
SUMMARY:缶
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20260101T000000Z
DTSTART;VALUE=DATE:20260226
SUMMARY:no uid
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte { return []byte(strings.ReplaceAll(s, "\n", "\r\n")) }

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func day(loc *time.Location, y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func TestParseSkipsEventsWithoutUID(t *testing.T) {
	loc := tokyo(t)
	events, err := Parse(Feed{ID: "city"}, crlf(cityFeed), loc)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, "burn@city", events[0].UID)
	assert.True(t, events[0].AllDay)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU", events[0].RawRRule)
	require.Len(t, events[0].ExDates, 1)
	assert.Equal(t, "2026-02-10", model.FormatDate(events[0].ExDates[0]))

	require.NotNil(t, events[1].RecurrenceID)
	assert.Equal(t, "2026-02-17", model.FormatDate(*events[1].RecurrenceID))

	assert.False(t, events[3].AllDay)
	assert.Equal(t, 15, events[3].Start.Hour())
}

func TestParseEmptyBody(t *testing.T) {
	_, err := Parse(Feed{ID: "x"}, []byte("  \n"), nil)
	assert.Error(t, err)
}

func TestExpandAppliesExdateAndOverrides(t *testing.T) {
	loc := tokyo(t)
	events, err := Parse(Feed{ID: "city"}, crlf(cityFeed), loc)
	require.NoError(t, err)

	occ, err := Expand(events, ExpandConfig{From: day(loc, 2026, 2, 1), To: day(loc, 2026, 2, 28), Location: loc})
	require.NoError(t, err)

	var got []string
	for _, o := range occ {
		got = append(got, model.FormatDate(o.Date)+" "+o.Summary)
	}
	assert.Equal(t, []string{
		"2026-02-03 燃えるゴミ",
		"2026-02-18 燃えるゴミ",
		"2026-02-21 粗大ゴミ",
		"2026-02-24 燃えるゴミ",
		"2026-02-25 缶",
	}, got)
}

func TestExpandWindowIsInclusive(t *testing.T) {
	loc := tokyo(t)
	events, err := Parse(Feed{ID: "city"}, crlf(cityFeed), loc)
	require.NoError(t, err)

	occ, err := Expand(events, ExpandConfig{From: day(loc, 2026, 2, 24), To: day(loc, 2026, 2, 24), Location: loc})
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, "燃えるゴミ", occ[0].Summary)

	_, err = Expand(events, ExpandConfig{From: day(loc, 2026, 2, 24), To: day(loc, 2026, 2, 1)})
	assert.Error(t, err)
}

func TestExpandCapsOccurrences(t *testing.T) {
	loc := tokyo(t)
	events, err := Parse(Feed{ID: "city"}, crlf(cityFeed), loc)
	require.NoError(t, err)

	occ, err := Expand(events[:1], ExpandConfig{
		From: day(loc, 2026, 1, 1), To: day(loc, 2030, 1, 1), Location: loc, MaxOccurrences: 5,
	})
	require.NoError(t, err)
	assert.Len(t, occ, 5)
}

func TestGuessIcon(t *testing.T) {
	for name, want := range map[string]string{
		"燃えるゴミ":       "burn",
		"燃えないゴミ":      "nonburn",
		"プラスチック製容器":   "plastic",
		"ビン・缶":        "bottle",
		"古紙・ダンボール":    "paper",
		"Restmüll":    "nonburn",
		"Papiertonne": "paper",
		"Gelber Sack": "plastic",
		"something":   "other",
	} {
		assert.Equal(t, want, GuessIcon(name), name)
	}
}

func TestProposeInfersRules(t *testing.T) {
	loc := tokyo(t)
	var occ []Occurrence
	add := func(summary string, dates ...time.Time) {
		for _, d := range dates {
			occ = append(occ, Occurrence{Summary: summary, Date: d})
		}
	}
	add("🔥 燃えるゴミ", day(loc, 2026, 2, 3), day(loc, 2026, 2, 10), day(loc, 2026, 2, 17), day(loc, 2026, 2, 24))
	add("古紙", day(loc, 2026, 2, 4), day(loc, 2026, 2, 18), day(loc, 2026, 3, 4), day(loc, 2026, 3, 18))
	add("粗大ゴミ", day(loc, 2026, 2, 21), day(loc, 2026, 2, 21), day(loc, 2026, 4, 18))
	add("缶", day(loc, 2026, 2, 5), day(loc, 2026, 2, 12), day(loc, 2026, 2, 26), day(loc, 2026, 3, 5))

	got := Propose(occ)
	assert.Equal(t, model.ScheduleVersion, got.Version)
	require.Len(t, got.Entries, 4)

	assert.Equal(t, model.TrashCategory{Name: "燃えるゴミ", Icon: "burn"}, got.Entries[0].Trash)
	assert.Equal(t, model.Weekly{DayOfWeek: time.Tuesday}, got.Entries[0].Rule)

	assert.Equal(t, model.Biweekly{DayOfWeek: time.Wednesday, ReferenceDate: "2026-02-04"}, got.Entries[1].Rule)
	assert.Equal(t, model.SpecificDates{Dates: []string{"2026-02-21", "2026-04-18"}}, got.Entries[2].Rule)
	assert.Equal(t, model.SpecificDates{Dates: []string{"2026-02-05", "2026-02-12", "2026-02-26", "2026-03-05"}}, got.Entries[3].Rule)

	seen := map[string]bool{}
	for _, e := range got.Entries {
		assert.NotEmpty(t, e.ID)
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}
	assert.NoError(t, got.Validate())
}

func TestExportRoundTrip(t *testing.T) {
	loc := tokyo(t)
	s := model.NewSchedule(
		model.Entry{ID: "a", Trash: model.TrashCategory{Name: "燃えるゴミ", Icon: "burn"}, Rule: model.Weekly{DayOfWeek: time.Tuesday}},
		model.Entry{ID: "b", Trash: model.TrashCategory{Name: "古紙", Icon: "paper"}, Rule: model.Biweekly{DayOfWeek: time.Wednesday, ReferenceDate: "2026-01-07"}},
		model.Entry{ID: "c", Trash: model.TrashCategory{Name: "ビン", Icon: "bottle"}, Rule: model.NthWeekday{Patterns: []model.NthPattern{
			{DayOfWeek: time.Thursday, WeekNumbers: []int{4, 2}},
		}}},
		model.Entry{ID: "d", Trash: model.TrashCategory{Name: "粗大ゴミ", Icon: "oversized"}, Rule: model.SpecificDates{Dates: []string{"2026-02-21", "2026-03-21"}}},
	)

	from := day(loc, 2026, 2, 1)
	out := Export(s, from)
	assert.Contains(t, out, "PRODID:"+productID)
	assert.Contains(t, out, "UID:a@trashcal")
	assert.Contains(t, out, "UID:d-20260221@trashcal")

	events, err := Parse(Feed{ID: "export"}, []byte(out), loc)
	require.NoError(t, err)
	occ, err := Expand(events, ExpandConfig{From: from, To: day(loc, 2026, 3, 31), Location: loc})
	require.NoError(t, err)

	got := map[string][]string{}
	for _, o := range occ {
		k := model.FormatDate(o.Date)
		got[k] = append(got[k], o.Summary)
	}
	for d := from; !d.After(day(loc, 2026, 3, 31)); d = d.AddDate(0, 0, 1) {
		var want []string
		for _, e := range schedule.EntriesOn(d, s.Entries) {
			want = append(want, e.Trash.Label())
		}
		assert.ElementsMatch(t, want, got[model.FormatDate(d)], model.FormatDate(d))
	}

	// Importing the export proposes the same rule shapes back.
	proposal := Propose(occ)
	require.Len(t, proposal.Entries, 4)
	byName := map[string]model.Entry{}
	for _, e := range proposal.Entries {
		byName[e.Trash.Name] = e
	}
	assert.Equal(t, model.Weekly{DayOfWeek: time.Tuesday}, byName["燃えるゴミ"].Rule)
	assert.Equal(t, "paper", byName["古紙"].Trash.Icon)
	assert.Equal(t, model.RuleBiweekly, byName["古紙"].Rule.Type())
}

func TestFetcherCachesAndFallsBack(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var conditional atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(cityFeed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	feed := Feed{ID: "city", URL: srv.URL + "/secret-token/cal.ics"}
	ctx := context.Background()

	res, err := f.Fetch(ctx, feed)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, crlf(cityFeed), res.Body)

	res, err = f.Fetch(ctx, feed)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, int32(1), conditional.Load())
	assert.Equal(t, crlf(cityFeed), res.Body)

	status.Store(http.StatusInternalServerError)
	res, err = f.Fetch(ctx, feed)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	results, errs := f.FetchAll(ctx, []Feed{feed, {ID: "cold", URL: srv.URL + "/other.ics"}, {ID: "blank"}})
	assert.Len(t, results, 1)
	assert.Len(t, errs, 2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://city.example/...(redacted)", redactURL("https://city.example/token/abc.ics"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
