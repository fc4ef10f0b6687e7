package migrate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trashcal/internal/model"
)

func TestNormalizeV1(t *testing.T) {
	raw := []byte(`{"2":{"name":"燃えるゴミ","icon":"burn"},"4":{"name":"資源ゴミ","icon":"recycle"}}`)

	s, res, err := Normalize(raw)
	require.NoError(t, err)
	assert.True(t, res.FromV1)
	assert.True(t, res.Changed())

	assert.Equal(t, model.ScheduleVersion, s.Version)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, model.Weekly{DayOfWeek: time.Tuesday}, s.Entries[0].Rule)
	assert.Equal(t, "燃えるゴミ", s.Entries[0].Trash.Name)
	assert.Equal(t, model.Weekly{DayOfWeek: time.Thursday}, s.Entries[1].Rule)
	assert.Equal(t, "recycle", s.Entries[1].Trash.Icon)

	assert.NotEmpty(t, s.Entries[0].ID)
	assert.NotEqual(t, s.Entries[0].ID, s.Entries[1].ID)
}

func TestNormalizeV1DropsEmptyNames(t *testing.T) {
	s, _, err := Normalize([]byte(`{"0":{"name":"","icon":""},"3":{"name":"ビン","icon":"bottle"}}`))
	require.NoError(t, err)
	require.Len(t, s.Entries, 1)
	assert.Equal(t, model.Weekly{DayOfWeek: time.Wednesday}, s.Entries[0].Rule)
}

func TestNormalizeEmptyV1(t *testing.T) {
	s, res, err := Normalize([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, res.FromV1)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":2,"entries":[]}`, string(b))
}

func TestNormalizeV1IgnoresUnknownKeys(t *testing.T) {
	s, res, err := Normalize([]byte(`{"7":{"name":"x","icon":""},"mon":{"name":"y","icon":""},"01":{"name":"z","icon":""},"1":{"name":"不燃ゴミ","icon":"nonburn"}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "7", "mon"}, res.IgnoredV1Keys)
	assert.True(t, res.Lossy())
	require.Len(t, s.Entries, 1)
	assert.Equal(t, model.Weekly{DayOfWeek: time.Monday}, s.Entries[0].Rule)
}

func TestNormalizeDefault(t *testing.T) {
	s, _, err := Normalize(DefaultV1)
	require.NoError(t, err)
	require.Len(t, s.Entries, 4)
	want := []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	for i, e := range s.Entries {
		assert.Equal(t, model.Weekly{DayOfWeek: want[i]}, e.Rule)
	}
}

func TestNormalizeLegacyNthWeekday(t *testing.T) {
	raw := []byte(`{"version":2,"entries":[
		{"id":"a","trash":{"name":"資源ゴミ","icon":"recycle"},"rule":{"type":"nthWeekday","dayOfWeek":3,"weekNumbers":[1,3]}},
		{"id":"b","trash":{"name":"燃えるゴミ","icon":"burn"},"rule":{"type":"weekly","dayOfWeek":2}}
	]}`)

	s, res, err := Normalize(raw)
	require.NoError(t, err)
	assert.False(t, res.FromV1)
	assert.Equal(t, 1, res.LegacyNth)
	assert.True(t, res.Changed())

	require.Len(t, s.Entries, 2)
	assert.Equal(t, "a", s.Entries[0].ID)
	assert.Equal(t, "資源ゴミ", s.Entries[0].Trash.Name)
	assert.Equal(t, model.NthWeekday{Patterns: []model.NthPattern{{DayOfWeek: time.Wednesday, WeekNumbers: []int{1, 3}}}}, s.Entries[0].Rule)

	rule, err := model.MarshalRule(s.Entries[0].Rule)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"nthWeekday","patterns":[{"dayOfWeek":3,"weekNumbers":[1,3]}]}`, string(rule))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first, _, err := Normalize([]byte(`{"version":2,"entries":[{"id":"a","trash":{"name":"資源ゴミ","icon":"recycle"},"rule":{"type":"nthWeekday","dayOfWeek":3,"weekNumbers":[1,3]}}]}`))
	require.NoError(t, err)
	once, err := json.Marshal(first)
	require.NoError(t, err)

	second, res, err := Normalize(once)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	twice, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}

func TestNormalizeDropsShapelessNthWeekday(t *testing.T) {
	raw := []byte(`{"version":2,"entries":[
		{"id":"a","trash":{"name":"x","icon":""},"rule":{"type":"nthWeekday"}},
		{"id":"b","trash":{"name":"y","icon":""},"rule":{"type":"nthWeekday","dayOfWeek":2,"weekNumbers":[2]}}
	]}`)
	s, res, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Discarded)
	assert.Equal(t, 1, res.LegacyNth)
	assert.True(t, res.Lossy())
	require.Len(t, s.Entries, 1)
	assert.Equal(t, "b", s.Entries[0].ID)
}

func TestNormalizeDropsUnknownRuleTypes(t *testing.T) {
	raw := []byte(`{"version":2,"entries":[
		{"id":"a","trash":{"name":"x","icon":""},"rule":{"type":"monthly","day":5}},
		{"id":"b","trash":{"name":"y","icon":""},"rule":{"type":"weekly","dayOfWeek":1}}
	]}`)
	s, res, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Discarded)
	assert.True(t, res.Lossy())
	require.Len(t, s.Entries, 1)
	assert.Equal(t, "b", s.Entries[0].ID)
}

func TestNormalizeUnrecognized(t *testing.T) {
	for _, raw := range []string{`[1,2,3]`, `"hello"`, `null`, `not json`} {
		_, _, err := Normalize([]byte(raw))
		assert.ErrorIs(t, err, ErrUnrecognizedSchedule, raw)
	}
}

func TestIsUpToDate(t *testing.T) {
	assert.True(t, IsUpToDate("1.2.0", "1.2.0"))
	assert.False(t, IsUpToDate("1.1.0", "1.2.0"))
	assert.False(t, IsUpToDate("", ""))
}

type memStore struct {
	raw      []byte
	backup   []byte
	marker   string
	saves    int
	lastSave model.Schedule
}

func (m *memStore) RawSchedule(context.Context) ([]byte, bool, error) {
	return m.raw, m.raw != nil, nil
}

func (m *memStore) SaveSchedule(_ context.Context, s model.Schedule) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.raw = b
	m.saves++
	m.lastSave = s
	return nil
}

func (m *memStore) BackupSchedule(_ context.Context, raw []byte) error {
	m.backup = append([]byte(nil), raw...)
	return nil
}

func (m *memStore) MigratedVersion(context.Context) (string, error) { return m.marker, nil }

func (m *memStore) SetMigratedVersion(_ context.Context, v string) error {
	m.marker = v
	return nil
}

func TestMigratorRunsOncePerVersion(t *testing.T) {
	ctx := context.Background()
	st := &memStore{raw: []byte(`{"2":{"name":"燃えるゴミ","icon":"burn"}}`)}
	m := NewMigrator(st)

	rep, err := m.MigrateIfNeeded(ctx, "1.0.0")
	require.NoError(t, err)
	assert.True(t, rep.Wrote)
	assert.Equal(t, 1, st.saves)
	assert.Equal(t, "1.0.0", st.marker)

	rep, err = m.MigrateIfNeeded(ctx, "1.0.0")
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Equal(t, 1, st.saves)

	// A new version re-runs normalization but the data is already current.
	rep, err = m.MigrateIfNeeded(ctx, "1.1.0")
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.False(t, rep.Wrote)
	assert.Equal(t, 1, st.saves)
	assert.Equal(t, "1.1.0", st.marker)
}

func TestMigratorSeedsDefault(t *testing.T) {
	st := &memStore{}
	rep, err := NewMigrator(st).MigrateIfNeeded(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.True(t, rep.Wrote)
	assert.False(t, rep.BackedUp)
	assert.Len(t, st.lastSave.Entries, 4)
}

func TestMigratorBacksUpUnrecognized(t *testing.T) {
	st := &memStore{raw: []byte(`["garbage"]`)}
	rep, err := NewMigrator(st).MigrateIfNeeded(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.True(t, rep.BackedUp)
	assert.Equal(t, `["garbage"]`, string(st.backup))
	assert.JSONEq(t, `{"version":2,"entries":[]}`, string(st.raw))
	assert.Equal(t, "1.0.0", st.marker)
}

func TestMigratorBacksUpLossyV2(t *testing.T) {
	raw := `{"version":2,"entries":[{"id":"a","trash":{"name":"x","icon":""},"rule":{"type":"monthly"}}]}`
	st := &memStore{raw: []byte(raw)}
	rep, err := NewMigrator(st).MigrateIfNeeded(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.True(t, rep.BackedUp)
	assert.True(t, rep.Wrote)
	assert.Equal(t, raw, string(st.backup))
	assert.Empty(t, st.lastSave.Entries)
}
