package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"trashcal/internal/extract"
	"trashcal/internal/ics"
	appLog "trashcal/internal/log"
	"trashcal/internal/model"
	"trashcal/internal/rule"
	"trashcal/internal/schedule"
	"trashcal/internal/scheduler"
	"trashcal/internal/store"
)

const (
	maxJSONBody = 1 << 20
	maxFileBody = 16 << 20
	// importDays is how far ahead an ICS import looks for collections.
	importDays = 365
)

type entryDTO struct {
	ID          string              `json:"id"`
	Trash       model.TrashCategory `json:"trash"`
	Label       string              `json:"label"`
	Rule        json.RawMessage     `json:"rule"`
	Description string              `json:"description"`
	Badge       string              `json:"badge,omitempty"`
}

type dayDTO struct {
	Date    string     `json:"date"`
	DayName string     `json:"dayName"`
	Entries []entryDTO `json:"entries"`
}

type monthCellDTO struct {
	dayDTO
	InMonth bool `json:"inMonth"`
}

type upcomingDTO struct {
	Date  string   `json:"date"`
	Entry entryDTO `json:"entry"`
}

type entryRequest struct {
	Trash model.TrashCategory `json:"trash"`
	Rule  json.RawMessage     `json:"rule"`
}

func toEntryDTO(e model.Entry) entryDTO {
	raw, err := model.MarshalRule(e.Rule)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return entryDTO{
		ID:          e.ID,
		Trash:       e.Trash,
		Label:       e.Trash.Label(),
		Rule:        raw,
		Description: rule.Describe(e.Rule),
		Badge:       rule.Badge(e.Rule),
	}
}

func toDayDTO(d schedule.Day) dayDTO {
	entries := make([]entryDTO, 0, len(d.Entries))
	for _, e := range d.Entries {
		entries = append(entries, toEntryDTO(e))
	}
	return dayDTO{Date: model.FormatDate(d.Date), DayName: model.DayName(d.Date.Weekday()), Entries: entries}
}

func (s *Server) today() time.Time {
	return model.DateOnly(s.now().In(s.loc))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// loadSchedule writes a 500 and returns false on a store failure.
func (s *Server) loadSchedule(w http.ResponseWriter, r *http.Request) (model.Schedule, bool) {
	sched, err := s.settings.Schedule(r.Context())
	if err != nil {
		appLog.Error("api: schedule read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read schedule")
		return model.Schedule{}, false
	}
	return sched, true
}

// saveSchedule validates and persists sched, then asks the scheduler to
// re-arm. It writes the error response itself and returns false on failure.
func (s *Server) saveSchedule(w http.ResponseWriter, r *http.Request, sched model.Schedule) bool {
	if err := sched.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := s.settings.SaveSchedule(r.Context(), sched); err != nil {
		appLog.Error("api: schedule save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save schedule")
		return false
	}
	s.requestReschedule()
	return true
}

func (s *Server) requestReschedule() {
	if s.sched != nil {
		s.sched.RequestReschedule()
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	return dec.Decode(v)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handlePutSchedule replaces the whole schedule.
func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	var sched model.Schedule
	if err := decodeJSON(r, &sched); err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule: "+err.Error())
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.saveSchedule(w, r, sched) {
		writeJSON(w, http.StatusOK, sched)
	}
}

// handleAcceptProposal persists a proposal from import or extraction after
// giving every entry a fresh id.
func (s *Server) handleAcceptProposal(w http.ResponseWriter, r *http.Request) {
	var proposal model.Schedule
	if err := decodeJSON(r, &proposal); err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal: "+err.Error())
		return
	}
	sched := schedule.AcceptProposal(proposal)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.saveSchedule(w, r, sched) {
		appLog.Info("api: proposal accepted", "entries", len(sched.Entries))
		writeJSON(w, http.StatusOK, sched)
	}
}

func (s *Server) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	raw, err := s.settings.ScheduleBackup(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no backup")
		return
	}
	if err != nil {
		appLog.Error("api: backup read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read backup")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func parseEntryRequest(r *http.Request) (model.TrashCategory, model.Rule, error) {
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		return model.TrashCategory{}, nil, err
	}
	ru, err := model.UnmarshalRule(req.Rule)
	if err != nil {
		return model.TrashCategory{}, nil, err
	}
	return req.Trash, ru, nil
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	trash, ru, err := parseEntryRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry: "+err.Error())
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	sched, id := schedule.Add(sched, trash, ru)
	if !s.saveSchedule(w, r, sched) {
		return
	}
	e, _ := schedule.Find(sched, id)
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	e, found := schedule.Find(sched, chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

func (s *Server) handleReplaceEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trash, ru, err := parseEntryRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry: "+err.Error())
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	sched, err = schedule.Replace(sched, id, trash, ru)
	if errors.Is(err, schedule.ErrEntryNotFound) {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	if !s.saveSchedule(w, r, sched) {
		return
	}
	e, _ := schedule.Find(sched, id)
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	sched, err := schedule.Remove(sched, chi.URLParam(r, "id"))
	if errors.Is(err, schedule.ErrEntryNotFound) {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	if s.saveSchedule(w, r, sched) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	tt := schedule.TodayAndTomorrow(s.now().In(s.loc), sched.Entries)
	writeJSON(w, http.StatusOK, map[string]dayDTO{
		"today":    toDayDTO(tt.Today),
		"tomorrow": toDayDTO(tt.Tomorrow),
	})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	d, err := model.ParseDate(chi.URLParam(r, "date"), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDayDTO(schedule.Day{Date: d, Entries: schedule.EntriesOn(d, sched.Entries)}))
}

// handleWeek returns the Sunday-start week containing ?date (default
// today), or the seven days from ?start when given.
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start := schedule.WeekStart(s.today())
	switch {
	case q.Get("start") != "":
		d, err := model.ParseDate(q.Get("start"), s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		start = d
	case q.Get("date") != "":
		d, err := model.ParseDate(q.Get("date"), s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		start = schedule.WeekStart(d)
	}

	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	days := schedule.Week(start, sched.Entries)
	out := make([]dayDTO, 0, len(days))
	for _, d := range days {
		out = append(out, toDayDTO(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMonth returns the 42-cell grid for ?month=YYYY-MM (default this
// month).
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	anchor := s.today()
	if m := r.URL.Query().Get("month"); m != "" {
		t, err := time.ParseInLocation("2006-01", m, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid month %q (use YYYY-MM)", m))
			return
		}
		anchor = t
	}

	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	cells := schedule.Month(anchor, sched.Entries)
	out := make([]monthCellDTO, 0, len(cells))
	for _, c := range cells {
		out = append(out, monthCellDTO{dayDTO: toDayDTO(c.Day), InMonth: c.InMonth})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month": anchor.Format("2006-01"),
		"cells": out,
	})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), schedule.DefaultUpcomingLimit)
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	list := schedule.Upcoming(s.today(), sched.Entries, limit)
	out := make([]upcomingDTO, 0, len(list))
	for _, u := range list {
		out = append(out, upcomingDTO{Date: u.Date, Entry: toEntryDTO(u.Entry)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	ns, err := s.settings.NotificationSettings(r.Context())
	if err != nil {
		appLog.Error("api: notification settings read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read notification settings")
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (s *Server) handlePutNotification(w http.ResponseWriter, r *http.Request) {
	var ns model.NotificationSettings
	if err := decodeJSON(r, &ns); err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification settings: "+err.Error())
		return
	}
	for _, v := range []string{ns.WeeklyNotificationTime, ns.DayBeforeNotificationTime} {
		if _, _, err := scheduler.ParseClock(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.settings.SaveNotificationSettings(r.Context(), ns); err != nil {
		appLog.Error("api: notification settings save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save notification settings")
		return
	}
	s.requestReschedule()
	writeJSON(w, http.StatusOK, ns)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.loadSchedule(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="trashcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ics.Export(sched, s.today()))
}

// handleImportICS proposes a schedule from an ICS body, or from the
// configured feed named by ?feed. Nothing is saved.
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	var (
		feed ics.Feed
		body []byte
		err  error
	)
	if id := r.URL.Query().Get("feed"); id != "" {
		if s.fetcher == nil {
			writeError(w, http.StatusServiceUnavailable, "feed fetching is not configured")
			return
		}
		var found bool
		for _, f := range s.cfg.Feeds {
			if f.ID == id {
				feed, found = ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL}, true
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, "unknown feed "+id)
			return
		}
		res, err := s.fetcher.Fetch(r.Context(), feed)
		if err != nil {
			writeError(w, http.StatusBadGateway, "feed fetch failed: "+err.Error())
			return
		}
		body = res.Body
	} else {
		feed = ics.Feed{ID: "upload"}
		body, err = io.ReadAll(io.LimitReader(r.Body, maxFileBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
	}

	events, err := ics.Parse(feed, body, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ICS: "+err.Error())
		return
	}
	today := s.today()
	occ, err := ics.Expand(events, ics.ExpandConfig{From: today, To: today.AddDate(0, 0, importDays), Location: s.loc})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ics.Propose(occ))
}

// handleExtract proposes a schedule from a PDF body using the stored API
// key. Nothing is saved.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	key, err := s.settings.APIKey(r.Context())
	if err != nil {
		appLog.Error("api: api key read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read API key")
		return
	}
	client, err := s.extract(key)
	if errors.Is(err, extract.ErrNoAPIKey) {
		writeError(w, http.StatusPreconditionFailed, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pdf, err := io.ReadAll(io.LimitReader(r.Body, maxFileBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	proposal, err := client.FromPDF(r.Context(), pdf)
	switch {
	case errors.Is(err, extract.ErrEmptyPDF):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		appLog.Error("api: extraction failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.settings.APIKey(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"set": key != ""})
}

func (s *Server) handlePutAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.settings.SetAPIKey(r.Context(), strings.TrimSpace(req.APIKey)); err != nil {
		appLog.Error("api: api key save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save API key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
