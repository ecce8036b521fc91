package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/api/handler"
	"github.com/cuongbtq/jobscheduler/internal/api/router"
	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/cuongbtq/jobscheduler/internal/jobtypes"
	"github.com/cuongbtq/jobscheduler/internal/queue"
	"github.com/cuongbtq/jobscheduler/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 8, 20, 9, 30, 15, 0, time.UTC)

type fakeChecker struct {
	err error
}

func (f fakeChecker) HealthCheck(ctx context.Context) error {
	return f.err
}

type testAPI struct {
	engine  *gin.Engine
	manager *jobs.Manager
	store   *storage.Memory
	queue   *queue.Memory
}

type requester struct {
	id        int64
	superuser bool
}

var (
	alice = requester{id: 1}
	bob   = requester{id: 2}
	admin = requester{id: 100, superuser: true}
)

func newTestAPI(t *testing.T, maxJobsPerUser int, checkers map[string]handler.HealthChecker) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := jobs.NewRegistry()
	require.NoError(t, jobtypes.Register(registry, jobtypes.Options{Logger: logger}))

	api := &testAPI{
		store: storage.NewMemory(),
		queue: queue.NewMemory(),
	}
	api.manager = jobs.NewManager(&jobs.ManagerConfig{
		Store:          api.store,
		Queue:          api.queue,
		Registry:       registry,
		Logger:         logger,
		MaxJobsPerUser: maxJobsPerUser,
		Now:            func() time.Time { return testNow },
	})

	engine, err := router.SetupRouter(&handler.Dependencies{
		Logger:   logger,
		Manager:  api.manager,
		Checkers: checkers,
	})
	require.NoError(t, err)
	api.engine = engine
	return api
}

func (a *testAPI) do(method, path string, who *requester, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if who != nil {
		req.Header.Set("X-User-ID", strconv.FormatInt(who.id, 10))
		if who.superuser {
			req.Header.Set("X-User-Superuser", "true")
		}
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testAPI) get(path string, who requester) *httptest.ResponseRecorder {
	return a.do(http.MethodGet, path, &who, "", nil)
}

func (a *testAPI) postJSON(path string, who requester, body string) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, path, &who, "application/json", strings.NewReader(body))
}

func (a *testAPI) postForm(path string, who requester, form url.Values) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, path, &who, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (a *testAPI) userJob(t *testing.T, owner int64, status jobs.Status) *jobs.Job {
	t.Helper()

	job, err := a.manager.Create(context.Background(), jobs.CreateParams{
		TypeID:  jobtypes.BatchProcessTypeID,
		Owner:   jobs.UserOwner(owner),
		Payload: map[string]any{"ctype": 3},
	})
	require.NoError(t, err)
	if status != jobs.StatusWait {
		require.NoError(t, a.store.UpdateStatus(context.Background(), job.ID, status, "", nil))
		job.Status = status
	}
	return job
}

func (a *testAPI) systemJob(t *testing.T, typeID string) *jobs.Job {
	t.Helper()

	typ, ok := a.manager.Registry().Lookup(typeID)
	require.True(t, ok)
	job, _, err := a.manager.EnsureSystemJob(context.Background(), typ)
	require.NoError(t, err)
	return job
}

func jobPath(job *jobs.Job, action string) string {
	path := "/api/v1/jobs/" + strconv.FormatInt(job.ID, 10)
	if action != "" {
		path += "/" + action
	}
	return path
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		api := newTestAPI(t, 1, map[string]handler.HealthChecker{"postgres": fakeChecker{}})

		w := api.do(http.MethodGet, "/health", nil, "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, map[string]any{"postgres": "ok", "scheduler": "ok"}, body["checks"])
	})

	t.Run("scheduler down is reported only", func(t *testing.T) {
		api := newTestAPI(t, 1, nil)
		api.queue.SetPingMessage("The job scheduler is not running.")

		w := api.do(http.MethodGet, "/health", nil, "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{"scheduler": "The job scheduler is not running."}, decode(t, w)["checks"])
	})

	t.Run("backing service down", func(t *testing.T) {
		api := newTestAPI(t, 1, map[string]handler.HealthChecker{"postgres": fakeChecker{err: errors.New("connection refused")}})

		w := api.do(http.MethodGet, "/health", nil, "", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode(t, w)
		assert.Equal(t, "unhealthy", body["status"])
	})
}

func TestIdentityMiddleware(t *testing.T) {
	api := newTestAPI(t, 1, nil)

	tests := []struct {
		name      string
		userID    string
		superuser string
		want      int
	}{
		{name: "missing user", want: http.StatusUnauthorized},
		{name: "not a number", userID: "alice", want: http.StatusUnauthorized},
		{name: "invalid superuser flag", userID: "1", superuser: "maybe", want: http.StatusUnauthorized},
		{name: "user", userID: "1", want: http.StatusOK},
		{name: "superuser", userID: "1", superuser: "1", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/mine", nil)
			if tt.userID != "" {
				req.Header.Set("X-User-ID", tt.userID)
			}
			if tt.superuser != "" {
				req.Header.Set("X-User-Superuser", tt.superuser)
			}
			w := httptest.NewRecorder()
			api.engine.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCreateJob(t *testing.T) {
	api := newTestAPI(t, 1, nil)

	w := api.postJSON("/api/v1/jobs", alice, `{"type_id":"core-batch_process","payload":{"ctype":3,"entity_ids":[4,5]}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, float64(jobs.StatusWait), body["status"])
	assert.Equal(t, "WAIT", body["status_label"])
	assert.Equal(t, float64(alice.id), body["user_id"])
	assert.Equal(t, "Batch process", body["type"])
	assert.Equal(t, float64(0), body["ack_errors"])
	assert.Len(t, api.queue.StartedJobs(), 1)

	t.Run("pending cap reached", func(t *testing.T) {
		w := api.postJSON("/api/v1/jobs", alice, `{"type_id":"core-batch_process","payload":{"ctype":3}}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "You must wait that your job is finished in order to create a new one.", decode(t, w)["error"])
	})

	t.Run("unknown type", func(t *testing.T) {
		w := api.postJSON("/api/v1/jobs", bob, `{"type_id":"core-unknown"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, jobs.InvalidJobTypeMessage, decode(t, w)["error"])
	})

	t.Run("missing type", func(t *testing.T) {
		w := api.postJSON("/api/v1/jobs", bob, `{"payload":{}}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("scheduler unreachable", func(t *testing.T) {
		api.queue.SetStartError(errors.New("connection refused"))
		defer api.queue.SetStartError(nil)

		w := api.postJSON("/api/v1/jobs", bob, `{"type_id":"core-batch_process","payload":{"ctype":3}}`)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, float64(1), decode(t, w)["ack_errors"])
	})
}

func TestListJobs(t *testing.T) {
	api := newTestAPI(t, 2, nil)
	first := api.userJob(t, alice.id, jobs.StatusWait)
	second := api.userJob(t, alice.id, jobs.StatusOK)
	third := api.userJob(t, bob.id, jobs.StatusWait)

	t.Run("all jobs are reserved to superusers", func(t *testing.T) {
		w := api.get("/api/v1/jobs", alice)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("all jobs", func(t *testing.T) {
		w := api.get("/api/v1/jobs", admin)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Jobs []struct {
				ID int64 `json:"id"`
			} `json:"jobs"`
			NextCursor     string `json:"next_cursor"`
			MaxJobsMessage string `json:"max_jobs_message"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Jobs, 3)
		assert.Equal(t, []int64{first.ID, second.ID, third.ID}, []int64{resp.Jobs[0].ID, resp.Jobs[1].ID, resp.Jobs[2].ID})
		assert.Empty(t, resp.NextCursor)
		assert.Empty(t, resp.MaxJobsMessage)
	})

	t.Run("pagination", func(t *testing.T) {
		var seen []int64
		path := "/api/v1/jobs?page_size=2"
		for page := 0; page < 3; page++ {
			w := api.get(path, admin)
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Jobs []struct {
					ID int64 `json:"id"`
				} `json:"jobs"`
				NextCursor string `json:"next_cursor"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			for _, j := range resp.Jobs {
				seen = append(seen, j.ID)
			}
			if resp.NextCursor == "" {
				break
			}
			path = "/api/v1/jobs?page_size=2&cursor=" + url.QueryEscape(resp.NextCursor)
		}
		assert.Equal(t, []int64{first.ID, second.ID, third.ID}, seen)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		w := api.get("/api/v1/jobs?cursor=%21%21", admin)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("status filter", func(t *testing.T) {
		w := api.get("/api/v1/jobs?status=20", admin)
		require.Equal(t, http.StatusOK, w.Code)

		jobsList := decode(t, w)["jobs"].([]any)
		require.Len(t, jobsList, 1)
		assert.Equal(t, float64(second.ID), jobsList[0].(map[string]any)["id"])
	})

	t.Run("unknown status", func(t *testing.T) {
		w := api.get("/api/v1/jobs?status=3", admin)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("mine", func(t *testing.T) {
		w := api.get("/api/v1/jobs/mine", bob)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		jobsList := body["jobs"].([]any)
		require.Len(t, jobsList, 1)
		assert.Equal(t, float64(third.ID), jobsList[0].(map[string]any)["id"])
		assert.Nil(t, body["max_jobs_message"])
	})

	t.Run("mine at the pending cap", func(t *testing.T) {
		api.userJob(t, bob.id, jobs.StatusWait)

		w := api.get("/api/v1/jobs/mine", bob)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t,
			"You must wait that one of your jobs is finished in order to create a new one.",
			decode(t, w)["max_jobs_message"],
		)
	})
}

func TestGetJob(t *testing.T) {
	api := newTestAPI(t, 1, nil)
	job := api.userJob(t, alice.id, jobs.StatusOK)

	entityID := int64(4)
	require.NoError(t, api.manager.AddResult(context.Background(), &jobs.Result{JobID: job.ID, EntityID: &entityID}))

	t.Run("owner", func(t *testing.T) {
		w := api.get(jobPath(job, ""), alice)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, w)
		assert.Equal(t, "Batch process", body["type"])
		assert.Equal(t, []any{"1 entity has been processed."}, body["stats"])
		assert.Equal(t, "1 entity has been processed.", body["progress"].(map[string]any)["label"])
		assert.Nil(t, body["periodicity"])
		assert.Nil(t, body["real_periodicity"])
	})

	t.Run("superuser", func(t *testing.T) {
		w := api.get(jobPath(job, ""), admin)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other user", func(t *testing.T) {
		w := api.get(jobPath(job, ""), bob)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing job", func(t *testing.T) {
		w := api.get("/api/v1/jobs/9999", alice)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := api.get("/api/v1/jobs/abc", alice)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid type", func(t *testing.T) {
		orphan := &jobs.Job{TypeID: "core-removed", Owner: jobs.UserOwner(alice.id), Status: jobs.StatusWait, Enabled: true}
		require.NoError(t, api.store.CreateJob(context.Background(), orphan))

		w := api.get(jobPath(orphan, ""), alice)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("periodic job", func(t *testing.T) {
		system := api.systemJob(t, jobtypes.TempFilesCleanerTypeID)

		w := api.get(jobPath(system, ""), admin)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Nil(t, body["user_id"])
		assert.Equal(t, map[string]any{"type": "days", "value": float64(1)}, body["periodicity"])
		assert.Equal(t, map[string]any{"type": "days", "value": float64(1)}, body["real_periodicity"])
	})
}

func TestGetJobResults(t *testing.T) {
	api := newTestAPI(t, 1, nil)
	job := api.userJob(t, alice.id, jobs.StatusOK)

	entityID := int64(4)
	require.NoError(t, api.manager.AddResult(context.Background(), &jobs.Result{JobID: job.ID, EntityID: &entityID}))
	require.NoError(t, api.manager.AddResult(context.Background(), &jobs.Result{JobID: job.ID, Messages: []string{"Entity is locked"}}))

	w := api.get(jobPath(job, "results"), alice)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(job.ID), body["job_id"])
	results := body["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, float64(4), results[0].(map[string]any)["entity_id"])
	assert.Equal(t, []any{}, results[0].(map[string]any)["messages"])
	assert.Equal(t, []any{"Entity is locked"}, results[1].(map[string]any)["messages"])

	assert.Equal(t, http.StatusForbidden, api.get(jobPath(job, "results"), bob).Code)
}

func TestEditJob_JSON(t *testing.T) {
	api := newTestAPI(t, 1, nil)
	system := api.systemJob(t, jobtypes.TempFilesCleanerTypeID)

	t.Run("periodicity", func(t *testing.T) {
		w := api.postJSON(jobPath(system, "edit"), admin, `{"periodicity":{"type":"hours","value":6}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, w)
		assert.Equal(t, true, body["refreshed"])
		assert.Nil(t, body["queue_error"])
		assert.Equal(t, map[string]any{"type": "hours", "value": float64(6)}, body["job"].(map[string]any)["periodicity"])

		refreshed := api.queue.RefreshedJobs()
		require.Len(t, refreshed, 1)
		assert.Equal(t, system.ID, refreshed[0].Job.ID)
	})

	t.Run("unknown unit", func(t *testing.T) {
		w := api.postJSON(jobPath(system, "edit"), admin, `{"periodicity":{"type":"fortnights","value":6}}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid reference run", func(t *testing.T) {
		w := api.postJSON(jobPath(system, "edit"), admin, `{"reference_run":"tomorrow"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "reference_run", decode(t, w)["field"])
	})

	t.Run("system job needs a superuser", func(t *testing.T) {
		w := api.postJSON(jobPath(system, "edit"), alice, `{"periodicity":{"type":"hours","value":6}}`)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("pseudo periodic job", func(t *testing.T) {
		reminder := api.systemJob(t, jobtypes.ReminderTypeID)

		w := api.postJSON(jobPath(reminder, "edit"), admin, `{"periodicity":{"type":"hours","value":6}}`)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("scheduler unreachable", func(t *testing.T) {
		api.queue.SetRefreshError(errors.New("connection refused"))
		defer api.queue.SetRefreshError(nil)

		w := api.postJSON(jobPath(system, "edit"), admin, `{"periodicity":{"type":"days","value":2}}`)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Equal(t, true, body["refreshed"])
		assert.Equal(t, "job scheduler queue refresh failed: connection refused", body["queue_error"])
	})
}

func TestEditJob_Form(t *testing.T) {
	api := newTestAPI(t, 1, nil)
	system := api.systemJob(t, jobtypes.TempFilesCleanerTypeID)

	form := url.Values{
		"reference_run": {"26-08-2014 14:00:00"},
		"periodicity_0": {"minutes"},
		"periodicity_1": {"180"},
		"delay_0":       {"weeks"},
		"delay_1":       {"2"},
	}
	w := api.postForm(jobPath(system, "edit"), admin, form)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["refreshed"])

	job, err := api.manager.Get(context.Background(), system.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2014, 8, 26, 14, 0, 0, 0, time.UTC), job.ReferenceRun)
	assert.Equal(t, map[string]any{"type": "minutes", "value": 180}, job.Periodicity.AsDict())

	data, err := job.Data()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "weeks", "value": float64(2)}, data["delay"])

	refreshed := api.queue.RefreshedJobs()
	require.Len(t, refreshed, 1)
	assert.Equal(t, "2014-08-26T14:00:00.000000Z", refreshed[0].Data.ReferenceRun)

	t.Run("unchanged schedule", func(t *testing.T) {
		w := api.postForm(jobPath(system, "edit"), admin, form)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		assert.Equal(t, false, decode(t, w)["refreshed"])
		assert.Len(t, api.queue.RefreshedJobs(), 1)
	})

	t.Run("value is not a number", func(t *testing.T) {
		w := api.postForm(jobPath(system, "edit"), admin, url.Values{
			"periodicity_0": {"minutes"},
			"periodicity_1": {"often"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "periodicity", decode(t, w)["field"])
	})

	t.Run("unknown unit", func(t *testing.T) {
		w := api.postForm(jobPath(system, "edit"), admin, url.Values{
			"periodicity_0": {"fortnights"},
			"periodicity_1": {"2"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid type data", func(t *testing.T) {
		w := api.postForm(jobPath(system, "edit"), admin, url.Values{
			"delay_0": {"days"},
			"delay_1": {"0"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("periods are bounded", func(t *testing.T) {
		before := len(api.queue.RefreshedJobs())

		for _, form := range []url.Values{
			{"periodicity_0": {"minutes"}, "periodicity_1": {"1099511627776"}},
			{"periodicity_0": {"years"}, "periodicity_1": {"101"}},
			{"delay_0": {"minutes"}, "delay_1": {"1099511627776"}},
		} {
			w := api.postForm(jobPath(system, "edit"), admin, form)
			assert.Equal(t, http.StatusBadRequest, w.Code, form.Encode())
		}

		assert.Len(t, api.queue.RefreshedJobs(), before)
	})
}

func TestEnableDisableJob(t *testing.T) {
	api := newTestAPI(t, 1, nil)
	system := api.systemJob(t, jobtypes.TempFilesCleanerTypeID)

	w := api.postJSON(jobPath(system, "disable"), admin, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, false, body["job"].(map[string]any)["enabled"])
	assert.Equal(t, true, body["refreshed"])

	w = api.postJSON(jobPath(system, "enable"), admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["job"].(map[string]any)["enabled"])
	assert.Len(t, api.queue.RefreshedJobs(), 2)

	t.Run("user job", func(t *testing.T) {
		job := api.userJob(t, alice.id, jobs.StatusWait)

		w := api.postJSON(jobPath(job, "disable"), alice, "")

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("not a superuser", func(t *testing.T) {
		w := api.postJSON(jobPath(system, "disable"), alice, "")

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestDeleteJob(t *testing.T) {
	api := newTestAPI(t, 1, nil)

	t.Run("finished job by owner", func(t *testing.T) {
		job := api.userJob(t, alice.id, jobs.StatusOK)

		w := api.postJSON(jobPath(job, "delete"), alice, "")

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, http.StatusNotFound, api.get(jobPath(job, ""), alice).Code)
	})

	t.Run("finished job by superuser", func(t *testing.T) {
		job := api.userJob(t, alice.id, jobs.StatusError)

		w := api.postJSON(jobPath(job, "delete"), admin, "")

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("other user", func(t *testing.T) {
		job := api.userJob(t, alice.id, jobs.StatusOK)

		w := api.postJSON(jobPath(job, "delete"), bob, "")

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("waiting job", func(t *testing.T) {
		job := api.userJob(t, bob.id, jobs.StatusWait)

		w := api.postJSON(jobPath(job, "delete"), bob, "")

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("system job", func(t *testing.T) {
		system := api.systemJob(t, jobtypes.TempFilesCleanerTypeID)

		w := api.postJSON(jobPath(system, "delete"), admin, "")

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestJobsInfo(t *testing.T) {
	api := newTestAPI(t, 1, nil)
	mine := api.userJob(t, alice.id, jobs.StatusWait)
	other := api.userJob(t, bob.id, jobs.StatusOK)

	path := "/api/v1/jobs/info?id=" + strconv.FormatInt(mine.ID, 10) +
		"&id=" + strconv.FormatInt(other.ID, 10) +
		"&id=9999&id=notint"

	w := api.get(path, alice)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	require.Len(t, body, 3)
	assert.Equal(t, map[string]any{
		"status":     float64(jobs.StatusWait),
		"ack_errors": float64(0),
		"progress":   map[string]any{"label": "0 entities have been processed.", "percentage": nil},
	}, body[strconv.FormatInt(mine.ID, 10)])
	assert.Equal(t, jobs.JobNotAllowedMessage, body[strconv.FormatInt(other.ID, 10)])
	assert.Equal(t, jobs.InvalidJobIDMessage, body["9999"])

	t.Run("scheduler unreachable", func(t *testing.T) {
		api.queue.SetPingError(errors.New("dial tcp: connection refused"))
		defer api.queue.SetPingError(nil)

		w := api.get(path, alice)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{"error": "job scheduler queue ping failed: dial tcp: connection refused"}, decode(t, w))
	})
}
