package canvas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/calplanner/internal/gcal"
	"github.com/hitoshi/calplanner/internal/model"
	"github.com/hitoshi/calplanner/internal/repository"
)

// --- モック ---

type mockUserStore struct {
	users        map[int64]*model.User
	findErr      error
	savedURL     string
	lastSync     *time.Time
	cleared      bool
	savedToken   *model.GoogleToken
	updateURLErr error
}

func (m *mockUserStore) FindByID(_ context.Context, id int64) (*model.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserStore) UpdateCanvasURL(_ context.Context, _ int64, icsURL string) error {
	if m.updateURLErr != nil {
		return m.updateURLErr
	}
	m.savedURL = icsURL
	return nil
}

func (m *mockUserStore) UpdateCanvasLastSync(_ context.Context, _ int64, at time.Time) error {
	m.lastSync = &at
	return nil
}

func (m *mockUserStore) ClearCanvas(_ context.Context, _ int64) error {
	m.cleared = true
	return nil
}

func (m *mockUserStore) UpdateGoogleToken(_ context.Context, _ int64, token model.GoogleToken) error {
	m.savedToken = &token
	return nil
}

type mockTaskStore struct {
	existing  []*model.Task
	created   []*model.Task
	createErr func(task *model.Task) error
	deleted   int64
}

func (m *mockTaskStore) ListByUser(_ context.Context, _ int64, _ model.TaskSource) ([]*model.Task, error) {
	return m.existing, nil
}

func (m *mockTaskStore) Create(_ context.Context, task *model.Task) error {
	if m.createErr != nil {
		if err := m.createErr(task); err != nil {
			return err
		}
	}
	task.ID = int64(len(m.created) + 1)
	m.created = append(m.created, task)
	return nil
}

func (m *mockTaskStore) DeleteByUserAndSource(_ context.Context, _ int64, _ model.TaskSource) (int64, error) {
	return m.deleted, nil
}

type mockFeedFetcher struct {
	body  []byte
	err   error
	calls int
}

func (m *mockFeedFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	m.calls++
	return m.body, m.err
}

type mockFeedParser struct {
	events []Event
	err    error
}

func (m *mockFeedParser) Parse(_ []byte) ([]Event, error) {
	return m.events, m.err
}

type mockValidator struct {
	err error
}

func (m *mockValidator) ValidateURL(_ string) error { return m.err }

// mockCalendar はgcal.Calendarのテスト用モック。
type mockCalendar struct {
	createFn  func(ev gcal.Event) (string, error)
	colorErr  error
	deleteErr error
	colors    map[string]string
	deleted   []string
	created   []gcal.Event
	token     model.GoogleToken
	refreshed bool
}

func (m *mockCalendar) CreateEvent(_ context.Context, ev gcal.Event) (string, error) {
	m.created = append(m.created, ev)
	if m.createFn != nil {
		return m.createFn(ev)
	}
	return fmt.Sprintf("g-%d", len(m.created)), nil
}

func (m *mockCalendar) SetEventColor(_ context.Context, eventID, colorID string) error {
	if m.colorErr != nil {
		return m.colorErr
	}
	if m.colors == nil {
		m.colors = map[string]string{}
	}
	m.colors[eventID] = colorID
	return nil
}

func (m *mockCalendar) DeleteEvent(_ context.Context, eventID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, eventID)
	return nil
}

func (m *mockCalendar) Token() (model.GoogleToken, bool, error) {
	return m.token, m.refreshed, nil
}

type mockOpener struct {
	cal   *mockCalendar
	err   error
	calls int
}

func (m *mockOpener) Open(_ context.Context, _ model.GoogleToken) (gcal.Calendar, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.cal, nil
}

type mockSyncRecorder struct {
	added, failed, failures int
}

func (m *mockSyncRecorder) RecordSyncResult(added, failed int) {
	m.added += added
	m.failed += failed
}

func (m *mockSyncRecorder) RecordSyncFailure() { m.failures++ }

// --- ヘルパー ---

var fixedNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func connectedUser(id int64) *model.User {
	return &model.User{
		ID:                 id,
		Email:              "student@example.edu",
		GoogleAccessToken:  "access",
		GoogleRefreshToken: "refresh",
		CanvasICSURL:       strPtr("https://canvas.example.edu/feeds/calendars/user_1.ics"),
	}
}

func sampleEvents() []Event {
	start := time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC)
	return []Event{
		{UID: "uid-1", Summary: "Essay 1", Start: start, End: start.Add(time.Hour)},
		{UID: "uid-2", Summary: "Quiz 2", Description: "Chapters 3-4", Start: start.Add(24 * time.Hour), End: start.Add(25 * time.Hour)},
	}
}

type serviceFixture struct {
	users    *mockUserStore
	tasks    *mockTaskStore
	fetcher  *mockFeedFetcher
	parser   *mockFeedParser
	cal      *mockCalendar
	opener   *mockOpener
	recorder *mockSyncRecorder
	svc      *Service
	logs     *bytes.Buffer
}

func newFixture(users map[int64]*model.User) *serviceFixture {
	f := &serviceFixture{
		users:    &mockUserStore{users: users},
		tasks:    &mockTaskStore{},
		fetcher:  &mockFeedFetcher{body: []byte(sampleICS)},
		parser:   &mockFeedParser{events: sampleEvents()},
		cal:      &mockCalendar{},
		recorder: &mockSyncRecorder{},
		logs:     &bytes.Buffer{},
	}
	f.opener = &mockOpener{cal: f.cal}
	f.svc = NewService(f.users, f.tasks, f.fetcher, f.parser, &mockValidator{}, f.opener,
		newTestLogger(f.logs), ServiceConfig{
			EventColorID: "11",
			Recorder:     f.recorder,
			Now:          func() time.Time { return fixedNow },
		})
	return f
}

// --- Sync ---

func TestService_Sync_AddsNewEvents(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})

	result, err := f.svc.Sync(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AddedEvents != 2 {
		t.Errorf("AddedEvents = %d, want 2", result.AddedEvents)
	}
	if len(result.NewEvents) != 2 {
		t.Errorf("NewEvents = %d, want 2", len(result.NewEvents))
	}
	if len(result.FailedEvents) != 0 {
		t.Errorf("FailedEvents = %+v", result.FailedEvents)
	}

	if len(f.tasks.created) != 2 {
		t.Fatalf("created tasks = %d, want 2", len(f.tasks.created))
	}
	task := f.tasks.created[0]
	if task.Source != model.TaskSourceCanvas || task.Color != "red" {
		t.Errorf("task source/color = %q/%q", task.Source, task.Color)
	}
	if task.CanvasEventID != "uid-1" || task.GoogleEventID != "g-1" {
		t.Errorf("task ids = %q/%q", task.CanvasEventID, task.GoogleEventID)
	}
	if f.cal.colors["g-1"] != "11" || f.cal.colors["g-2"] != "11" {
		t.Errorf("colors = %v", f.cal.colors)
	}
	if f.users.lastSync == nil || !f.users.lastSync.Equal(fixedNow) {
		t.Errorf("lastSync = %v, want %v", f.users.lastSync, fixedNow)
	}
	if f.recorder.added != 2 || f.recorder.failed != 0 {
		t.Errorf("recorder = %+v", f.recorder)
	}
}

func TestService_Sync_SkipsMirroredUIDs(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.tasks.existing = []*model.Task{{ID: 9, Source: model.TaskSourceCanvas, CanvasEventID: "uid-1"}}

	result, err := f.svc.Sync(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AddedEvents != 1 || len(result.NewEvents) != 1 || result.NewEvents[0].UID != "uid-2" {
		t.Errorf("result = %+v", result)
	}
	if len(f.cal.created) != 1 {
		t.Errorf("calendar inserts = %d, want 1", len(f.cal.created))
	}
}

func TestService_Sync_Idempotent(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})

	if _, err := f.svc.Sync(context.Background(), 1); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	f.tasks.existing = f.tasks.created
	f.tasks.created = nil

	result, err := f.svc.Sync(context.Background(), 1)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.AddedEvents != 0 || len(result.NewEvents) != 0 {
		t.Errorf("second sync should add nothing, got %+v", result)
	}
	if f.opener.calls != 1 {
		t.Errorf("calendar should not be opened without new events, opened %d times", f.opener.calls)
	}
	if f.users.lastSync == nil {
		t.Error("lastSync should be updated even without new events")
	}
}

func TestService_Sync_DuplicateUIDInFeed(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	events := sampleEvents()
	f.parser.events = append(events, events[0])

	result, err := f.svc.Sync(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AddedEvents != 2 || len(result.NewEvents) != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestService_Sync_PartialFailure(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.cal.createFn = func(ev gcal.Event) (string, error) {
		if ev.Summary == "Essay 1" {
			return "", errors.New("quota exceeded")
		}
		return "g-ok", nil
	}

	result, err := f.svc.Sync(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AddedEvents != 1 {
		t.Errorf("AddedEvents = %d, want 1", result.AddedEvents)
	}
	if len(result.FailedEvents) != 1 || result.FailedEvents[0].UID != "uid-1" {
		t.Errorf("FailedEvents = %+v", result.FailedEvents)
	}
	if len(result.NewEvents) != 2 {
		t.Errorf("NewEvents should include failed events, got %d", len(result.NewEvents))
	}
	if f.users.lastSync == nil {
		t.Error("lastSync should be updated after partial failure")
	}
	if f.recorder.added != 1 || f.recorder.failed != 1 {
		t.Errorf("recorder = %+v", f.recorder)
	}
}

func TestService_Sync_ColorFailureIsIgnored(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.cal.colorErr = errors.New("forbidden")

	result, err := f.svc.Sync(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AddedEvents != 2 {
		t.Errorf("AddedEvents = %d, want 2", result.AddedEvents)
	}
}

func TestService_Sync_DuplicateTaskRollsBackGoogleEvent(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.tasks.createErr = func(task *model.Task) error {
		if task.CanvasEventID == "uid-1" {
			return fmt.Errorf("insert: %w", repository.ErrDuplicate)
		}
		return nil
	}

	result, err := f.svc.Sync(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AddedEvents != 1 || len(result.FailedEvents) != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(f.cal.deleted) != 1 || f.cal.deleted[0] != "g-1" {
		t.Errorf("deleted google events = %v, want [g-1]", f.cal.deleted)
	}
}

func TestService_Sync_PersistsRefreshedToken(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.cal.token = model.GoogleToken{AccessToken: "new-access", RefreshToken: "refresh"}
	f.cal.refreshed = true

	if _, err := f.svc.Sync(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.users.savedToken == nil || f.users.savedToken.AccessToken != "new-access" {
		t.Errorf("savedToken = %+v", f.users.savedToken)
	}
}

func TestService_Sync_Errors(t *testing.T) {
	notConnected := connectedUser(2)
	notConnected.GoogleAccessToken = ""
	notConnected.GoogleRefreshToken = ""
	noCanvas := connectedUser(3)
	noCanvas.CanvasICSURL = nil

	tests := []struct {
		name     string
		userID   int64
		wantCode string
	}{
		{"invalid id", 0, model.ErrCodeInvalidRequest},
		{"unknown user", 99, model.ErrCodeUserNotFound},
		{"google not connected", 2, model.ErrCodeGoogleNotConnected},
		{"canvas not configured", 3, model.ErrCodeCanvasNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(map[int64]*model.User{2: notConnected, 3: noCanvas})
			_, err := f.svc.Sync(context.Background(), tt.userID)
			assertAPIErrorCode(t, err, tt.wantCode)
			if f.fetcher.calls != 0 {
				t.Errorf("feed should not be fetched, fetched %d times", f.fetcher.calls)
			}
		})
	}
}

func TestService_Sync_FetchError(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.fetcher.err = model.NewFeedIsWebpageError()

	_, err := f.svc.Sync(context.Background(), 1)
	assertAPIErrorCode(t, err, model.ErrCodeFeedIsWebpage)
	if f.users.lastSync != nil {
		t.Error("lastSync should not change when fetch fails")
	}
	if f.recorder.failures != 1 {
		t.Errorf("failures = %d, want 1", f.recorder.failures)
	}
}

func TestService_Sync_ParseError(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.parser.err = errors.New("bad ics")

	_, err := f.svc.Sync(context.Background(), 1)
	assertAPIErrorCode(t, err, model.ErrCodeFeedParseFailed)
}

// --- Setup ---

func TestService_Setup(t *testing.T) {
	user := connectedUser(1)
	user.CanvasICSURL = nil
	f := newFixture(map[int64]*model.User{1: user})

	url := "https://canvas.example.edu/feeds/calendars/user_new.ics"
	result, err := f.svc.Setup(context.Background(), 1, url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.users.savedURL != url {
		t.Errorf("savedURL = %q", f.users.savedURL)
	}
	if result.AddedEvents != 2 {
		t.Errorf("AddedEvents = %d, want 2", result.AddedEvents)
	}
}

func TestService_Setup_Validation(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})

	_, err := f.svc.Setup(context.Background(), 1, "")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)

	f.svc.validator = &mockValidator{err: errors.New("not absolute")}
	_, err = f.svc.Setup(context.Background(), 1, "not a url")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidURL)
	if f.users.savedURL != "" {
		t.Errorf("invalid URL should not be stored, got %q", f.users.savedURL)
	}
}

func TestService_Setup_KeepsURLWhenGoogleMissing(t *testing.T) {
	user := connectedUser(1)
	user.GoogleAccessToken = ""
	user.GoogleRefreshToken = ""
	f := newFixture(map[int64]*model.User{1: user})

	url := "https://canvas.example.edu/feeds/calendars/user_1.ics"
	_, err := f.svc.Setup(context.Background(), 1, url)
	assertAPIErrorCode(t, err, model.ErrCodeGoogleNotConnected)
	if f.users.savedURL != url {
		t.Errorf("URL should be stored before sync, got %q", f.users.savedURL)
	}
}

// --- Status ---

func TestService_Status(t *testing.T) {
	synced := connectedUser(1)
	synced.CanvasLastSync = &fixedNow
	f := newFixture(map[int64]*model.User{1: synced, 2: {ID: 2}})

	st, err := f.svc.Status(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.IsConnected || st.ICSURL != *synced.CanvasICSURL || st.LastSync == nil {
		t.Errorf("status = %+v", st)
	}

	for _, id := range []int64{2, 99} {
		st, err := f.svc.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected error for user %d: %v", id, err)
		}
		if st.IsConnected || st.ICSURL != "" {
			t.Errorf("user %d status = %+v, want disconnected", id, st)
		}
	}
}

// --- Remove ---

func TestService_Remove(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.tasks.existing = []*model.Task{
		{ID: 1, Source: model.TaskSourceCanvas, CanvasEventID: "uid-1", GoogleEventID: "g-1"},
		{ID: 2, Source: model.TaskSourceCanvas, CanvasEventID: "uid-2", GoogleEventID: "g-2"},
		{ID: 3, Source: model.TaskSourceCanvas, CanvasEventID: "uid-3"},
	}
	f.tasks.deleted = 3

	result, err := f.svc.Remove(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 3 || result.RemoteDeleteFailures != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(f.cal.deleted) != 2 {
		t.Errorf("remote deletes = %v", f.cal.deleted)
	}
	if !f.users.cleared {
		t.Error("canvas settings should be cleared")
	}
}

func TestService_Remove_RemoteFailuresAreCounted(t *testing.T) {
	f := newFixture(map[int64]*model.User{1: connectedUser(1)})
	f.tasks.existing = []*model.Task{
		{ID: 1, Source: model.TaskSourceCanvas, GoogleEventID: "g-1"},
		{ID: 2, Source: model.TaskSourceCanvas, GoogleEventID: "g-2"},
	}
	f.tasks.deleted = 2
	f.cal.deleteErr = errors.New("gone")

	result, err := f.svc.Remove(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RemoteDeleteFailures != 2 || result.DeletedCount != 2 {
		t.Errorf("result = %+v", result)
	}
	if !f.users.cleared {
		t.Error("canvas settings should be cleared despite remote failures")
	}
}

func TestService_Remove_WithoutGoogle(t *testing.T) {
	user := connectedUser(1)
	user.GoogleAccessToken = ""
	user.GoogleRefreshToken = ""
	f := newFixture(map[int64]*model.User{1: user})
	f.tasks.existing = []*model.Task{{ID: 1, Source: model.TaskSourceCanvas, GoogleEventID: "g-1"}}
	f.tasks.deleted = 1

	result, err := f.svc.Remove(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.opener.calls != 0 {
		t.Error("calendar should not be opened without Google tokens")
	}
	if result.DeletedCount != 1 {
		t.Errorf("DeletedCount = %d", result.DeletedCount)
	}
}

func TestService_Remove_UnknownUser(t *testing.T) {
	f := newFixture(map[int64]*model.User{})
	_, err := f.svc.Remove(context.Background(), 5)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}
