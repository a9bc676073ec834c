package handler

import (
	"time"

	"github.com/hitoshi/calplanner/internal/assistant"
	"github.com/hitoshi/calplanner/internal/auth"
	"github.com/hitoshi/calplanner/internal/canvas"
	"github.com/hitoshi/calplanner/internal/model"
	"github.com/hitoshi/calplanner/internal/task"
	"github.com/hitoshi/calplanner/internal/user"
)

// ドメイン型をAPIレスポンス型に変換する。
// トークンやパスワードハッシュはレスポンスに含めない。

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Priority      string    `json:"priority"`
	Color         string    `json:"color"`
	Source        string    `json:"source"`
	CanvasEventID string    `json:"canvas_event_id,omitempty"`
	GoogleEventID string    `json:"google_event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:            t.ID,
		UserID:        t.UserID,
		Name:          t.Name,
		Description:   t.Description,
		StartTime:     t.StartTime,
		EndTime:       t.EndTime,
		Priority:      t.Priority,
		Color:         t.Color,
		Source:        string(t.Source),
		CanvasEventID: t.CanvasEventID,
		GoogleEventID: t.GoogleEventID,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toTaskResponses(tasks []*model.Task) []taskResponse {
	out := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = toTaskResponse(t)
	}
	return out
}

// userResponse はユーザーのAPIレスポンス。
type userResponse struct {
	ID              int64     `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	GoogleConnected bool      `json:"google_connected"`
	CanvasConnected bool      `json:"canvas_connected"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		GoogleConnected: u.GoogleConnected(),
		CanvasConnected: u.CanvasConfigured(),
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// canvasEventResponse はフィードから読み取ったイベント。
type canvasEventResponse struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// failedEventResponse は同期できなかったイベント。
type failedEventResponse struct {
	UID     string `json:"uid"`
	Summary string `json:"summary"`
	Reason  string `json:"reason"`
}

// canvasSyncResponse は連携登録・同期のAPIレスポンス。
type canvasSyncResponse struct {
	Message      string                `json:"message"`
	AddedEvents  int                   `json:"addedEvents"`
	NewEvents    []canvasEventResponse `json:"newEvents"`
	FailedEvents []failedEventResponse `json:"failedEvents"`
}

func toCanvasSyncResponse(message string, res *canvas.SyncResult) canvasSyncResponse {
	resp := canvasSyncResponse{
		Message:      message,
		AddedEvents:  res.AddedEvents,
		NewEvents:    make([]canvasEventResponse, len(res.NewEvents)),
		FailedEvents: make([]failedEventResponse, len(res.FailedEvents)),
	}
	for i, ev := range res.NewEvents {
		resp.NewEvents[i] = canvasEventResponse{
			UID:         ev.UID,
			Summary:     ev.Summary,
			Description: ev.Description,
			Location:    ev.Location,
			Start:       ev.Start,
			End:         ev.End,
		}
	}
	for i, f := range res.FailedEvents {
		resp.FailedEvents[i] = failedEventResponse{UID: f.UID, Summary: f.Summary, Reason: f.Reason}
	}
	return resp
}

// canvasStatusResponse はCanvas連携状態のAPIレスポンス。未接続時のicsUrlとlastSyncはnull。
type canvasStatusResponse struct {
	IsConnected bool       `json:"isConnected"`
	ICSURL      *string    `json:"icsUrl"`
	LastSync    *time.Time `json:"lastSync"`
}

func toCanvasStatusResponse(st *canvas.Status) canvasStatusResponse {
	resp := canvasStatusResponse{IsConnected: st.IsConnected, LastSync: st.LastSync}
	if st.ICSURL != "" {
		u := st.ICSURL
		resp.ICSURL = &u
	}
	return resp
}

// assistantResponse はアシスタント処理のAPIレスポンス。
type assistantResponse struct {
	Message      string                `json:"message"`
	Tasks        []assistant.Candidate `json:"tasks"`
	TasksCreated int                   `json:"tasksCreated"`
	MissingInfo  []string              `json:"missingInfo,omitempty"`
	Conflicts    []string              `json:"conflicts,omitempty"`
	FailedTasks  []string              `json:"failedTasks,omitempty"`
}

func toAssistantResponse(res *assistant.Result) assistantResponse {
	tasks := res.Tasks
	if tasks == nil {
		tasks = []assistant.Candidate{}
	}
	return assistantResponse{
		Message:      res.Message,
		Tasks:        tasks,
		TasksCreated: res.TasksCreated,
		MissingInfo:  res.MissingInfo,
		Conflicts:    res.Conflicts,
		FailedTasks:  res.FailedTasks,
	}
}

// --- compile-time interface checks ---

var _ TaskServiceInterface = (*task.Service)(nil)
var _ UserServiceInterface = (*user.Service)(nil)
var _ AssistantServiceInterface = (*assistant.Service)(nil)
var _ CanvasServiceInterface = (*canvas.Service)(nil)
var _ CalendarConnectionServiceInterface = (*auth.Service)(nil)
