package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/flowlocal/flowlocal/pkg/channels/gochannel"
	"github.com/flowlocal/flowlocal/pkg/engine"
	"github.com/flowlocal/flowlocal/pkg/eventbus"
	"github.com/flowlocal/flowlocal/pkg/machine"
	"github.com/flowlocal/flowlocal/pkg/models"
	"github.com/flowlocal/flowlocal/pkg/registry"
	"github.com/flowlocal/flowlocal/pkg/resources/echo"
	"github.com/flowlocal/flowlocal/pkg/resources/failtask"
	"github.com/flowlocal/flowlocal/pkg/store/memory"
	"github.com/flowlocal/flowlocal/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	reg := registry.NewRegistry(logger)
	reg.Register(echo.NewFactory())
	reg.Register(failtask.NewFactory())

	st := memory.NewStore()
	runner := machine.NewRunner(logger, st, bus, engine.New(reg, logger))
	handlers := web.NewAPIHandlers(runner, st, validator.New())

	app := fiber.New()
	handlers.Register(app)

	return app
}

func echoDocument() map[string]any {
	return map[string]any{
		"StartAt": "Work",
		"States": map[string]any{
			"Work": map[string]any{"Type": "Task", "Resource": "echo", "Next": "Done"},
			"Done": map[string]any{"Type": "Succeed"},
		},
	}
}

func createMachine(t *testing.T, app *fiber.App, name string, mode models.Mode) models.StateMachine {
	t.Helper()

	body, err := json.Marshal(web.CreateMachineRequest{Name: name, Mode: mode, Document: echoDocument()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/machines", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.StateMachine

	decode(t, resp, &created)

	return created
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestCreateMachine(t *testing.T) {
	app := setupTestApp(t)

	created := createMachine(t, app, "orders", models.ModeSync)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "orders", created.Name)
	assert.Equal(t, models.ModeSync, created.Mode)
}

func TestCreateMachine_BadRequests(t *testing.T) {
	app := setupTestApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{nope"},
		{"missing name", `{"document": {"StartAt": "Done", "States": {"Done": {"Type": "Succeed"}}}}`},
		{"missing document", `{"name": "orders"}`},
		{"invalid mode", `{"name": "orders", "mode": "turbo", "document": {"StartAt": "Done", "States": {"Done": {"Type": "Succeed"}}}}`},
		{"undefined start state", `{"name": "orders", "document": {"StartAt": "Nowhere", "States": {"Done": {"Type": "Succeed"}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/machines", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetMachine(t *testing.T) {
	app := setupTestApp(t)
	created := createMachine(t, app, "orders", models.ModeAsync)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/machines/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/machines/does-not-exist", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetMachines(t *testing.T) {
	app := setupTestApp(t)
	createMachine(t, app, "orders", models.ModeAsync)
	createMachine(t, app, "billing", models.ModeSync)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/machines", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Machines   []models.StateMachine `json:"machines"`
		TotalCount int                   `json:"total_count"`
	}

	decode(t, resp, &listing)
	assert.Equal(t, 2, listing.TotalCount)
	assert.Len(t, listing.Machines, 2)
}

func TestDeleteMachine(t *testing.T) {
	app := setupTestApp(t)
	created := createMachine(t, app, "orders", models.ModeAsync)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/machines/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/machines/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartExecution_SyncMachine(t *testing.T) {
	app := setupTestApp(t)
	created := createMachine(t, app, "orders", models.ModeSync)

	body := bytes.NewBufferString(`{"input": {"order": 7}}`)
	req := httptest.NewRequest(http.MethodPost, "/machines/"+created.ID+"/executions", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var exec models.Execution

	decode(t, resp, &exec)
	assert.Equal(t, models.ExecutionSucceeded, exec.Status)
	assert.Equal(t, map[string]any{"order": 7.0}, exec.Output)
	assert.NotEmpty(t, exec.History)
}

func TestStartExecution_ModeOverride(t *testing.T) {
	app := setupTestApp(t)

	// The machine defaults to async; the request forces a blocking run.
	created := createMachine(t, app, "orders", models.ModeAsync)

	body := bytes.NewBufferString(`{"input": {"order": 7}, "mode": "sync"}`)
	req := httptest.NewRequest(http.MethodPost, "/machines/"+created.ID+"/executions", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var exec models.Execution

	decode(t, resp, &exec)
	assert.Equal(t, models.ExecutionSucceeded, exec.Status)
}

func TestStartExecution_UnknownMachine(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/machines/missing/executions", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetExecutionAndHistory(t *testing.T) {
	app := setupTestApp(t)
	created := createMachine(t, app, "orders", models.ModeSync)

	req := httptest.NewRequest(http.MethodPost, "/machines/"+created.ID+"/executions",
		bytes.NewBufferString(`{"input": 1}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var exec models.Execution

	decode(t, resp, &exec)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/executions/"+exec.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/executions/"+exec.ID+"/history", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history struct {
		ExecutionID string                   `json:"execution_id"`
		History     []models.StateTransition `json:"history"`
	}

	decode(t, resp, &history)
	assert.Equal(t, exec.ID, history.ExecutionID)
	assert.Len(t, history.History, 2)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/executions/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStopExecution_Unknown(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/executions/missing/stop", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListExecutions(t *testing.T) {
	app := setupTestApp(t)
	created := createMachine(t, app, "orders", models.ModeSync)

	req := httptest.NewRequest(http.MethodPost, "/machines/"+created.ID+"/executions",
		bytes.NewBufferString(`{"input": 1}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/machines/"+created.ID+"/executions", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Executions []models.Execution `json:"executions"`
		TotalCount int                `json:"total_count"`
	}

	decode(t, resp, &listing)
	assert.Equal(t, 1, listing.TotalCount)
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
