package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/calplanner/internal/assistant"
	"github.com/hitoshi/calplanner/internal/canvas"
	"github.com/hitoshi/calplanner/internal/middleware"
	"github.com/hitoshi/calplanner/internal/model"
	"github.com/hitoshi/calplanner/internal/task"
	"github.com/hitoshi/calplanner/internal/user"
)

// --- モック定義 ---

type mockTaskService struct {
	listFn       func(ctx context.Context, userID int64, source string) ([]*model.Task, error)
	createFn     func(ctx context.Context, in task.CreateInput) (*model.Task, error)
	updateFn     func(ctx context.Context, id int64, in task.UpdateInput) (*model.Task, error)
	deleteFn     func(ctx context.Context, id int64) (*model.Task, error)
	deleteManyFn func(ctx context.Context, ids []int64) (int64, error)
}

func (m *mockTaskService) List(ctx context.Context, userID int64, source string) ([]*model.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, source)
	}
	return []*model.Task{}, nil
}

func (m *mockTaskService) Create(ctx context.Context, in task.CreateInput) (*model.Task, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.Task{}, nil
}

func (m *mockTaskService) Update(ctx context.Context, id int64, in task.UpdateInput) (*model.Task, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in)
	}
	return &model.Task{ID: id}, nil
}

func (m *mockTaskService) Delete(ctx context.Context, id int64) (*model.Task, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return &model.Task{ID: id}, nil
}

func (m *mockTaskService) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if m.deleteManyFn != nil {
		return m.deleteManyFn(ctx, ids)
	}
	return int64(len(ids)), nil
}

type mockUserService struct {
	signupFn func(ctx context.Context, in user.SignupInput) (*model.User, error)
	loginFn  func(ctx context.Context, email, password string) (*model.User, error)
	getFn    func(ctx context.Context, id int64) (*model.User, error)
	updateFn func(ctx context.Context, id int64, in user.UpdateInput) (*model.User, error)
}

func (m *mockUserService) Signup(ctx context.Context, in user.SignupInput) (*model.User, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in)
	}
	return &model.User{ID: 1}, nil
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockUserService) Get(ctx context.Context, id int64) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) Update(ctx context.Context, id int64, in user.UpdateInput) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in)
	}
	return &model.User{ID: id}, nil
}

type mockAssistantService struct {
	processFn func(ctx context.Context, userID int64, input string) (*assistant.Result, error)
}

func (m *mockAssistantService) Process(ctx context.Context, userID int64, input string) (*assistant.Result, error) {
	if m.processFn != nil {
		return m.processFn(ctx, userID, input)
	}
	return &assistant.Result{}, nil
}

type mockCanvasService struct {
	setupFn  func(ctx context.Context, userID int64, icsURL string) (*canvas.SyncResult, error)
	syncFn   func(ctx context.Context, userID int64) (*canvas.SyncResult, error)
	statusFn func(ctx context.Context, userID int64) (*canvas.Status, error)
	removeFn func(ctx context.Context, userID int64) (*canvas.RemoveResult, error)
}

func (m *mockCanvasService) Setup(ctx context.Context, userID int64, icsURL string) (*canvas.SyncResult, error) {
	if m.setupFn != nil {
		return m.setupFn(ctx, userID, icsURL)
	}
	return &canvas.SyncResult{}, nil
}

func (m *mockCanvasService) Sync(ctx context.Context, userID int64) (*canvas.SyncResult, error) {
	if m.syncFn != nil {
		return m.syncFn(ctx, userID)
	}
	return &canvas.SyncResult{}, nil
}

func (m *mockCanvasService) Status(ctx context.Context, userID int64) (*canvas.Status, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return &canvas.Status{}, nil
}

func (m *mockCanvasService) Remove(ctx context.Context, userID int64) (*canvas.RemoveResult, error) {
	if m.removeFn != nil {
		return m.removeFn(ctx, userID)
	}
	return &canvas.RemoveResult{}, nil
}

type mockCalendarService struct {
	authURLFn    func(ctx context.Context, userID int64) (string, error)
	callbackFn   func(ctx context.Context, code, state string) (int64, error)
	statusFn     func(ctx context.Context, userID int64) (bool, error)
	disconnectFn func(ctx context.Context, userID int64) error
}

func (m *mockCalendarService) AuthURL(ctx context.Context, userID int64) (string, error) {
	if m.authURLFn != nil {
		return m.authURLFn(ctx, userID)
	}
	return "", nil
}

func (m *mockCalendarService) HandleCallback(ctx context.Context, code, state string) (int64, error) {
	if m.callbackFn != nil {
		return m.callbackFn(ctx, code, state)
	}
	return 1, nil
}

func (m *mockCalendarService) Status(ctx context.Context, userID int64) (bool, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return false, nil
}

func (m *mockCalendarService) Disconnect(ctx context.Context, userID int64) error {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID)
	}
	return nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

// newTestDeps は全サービスにデフォルトのモックを設定したRouterDepsを返す。
func newTestDeps(t *testing.T) *RouterDeps {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)
	return &RouterDeps{
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       rl,
		HealthChecker:     &mockHealthChecker{},
		TaskService:       &mockTaskService{},
		UserService:       &mockUserService{},
		AssistantService:  &mockAssistantService{},
		CanvasService:     &mockCanvasService{},
		CalendarService:   &mockCalendarService{},
		CalendarConfig:    CalendarHandlerConfig{FrontendURL: "http://localhost:5173"},
	}
}

// serve はルーターにリクエストを送り、レスポンスを返す。
func serve(t *testing.T, deps *RouterDeps, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(w, req)
	return w
}

// decodeBody はレスポンスボディをvにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	decodeBody(t, w, &result)
	return result
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, want, w.Body.String())
	}
}
