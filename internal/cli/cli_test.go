package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/pipesim/internal/api"
	"github.com/shaiso/pipesim/internal/events"
	"github.com/shaiso/pipesim/internal/orchestrator"
	"github.com/shaiso/pipesim/internal/repo"
	"github.com/shaiso/pipesim/internal/worker"
)

// newServer поднимает настоящий API с быстрыми стадиями.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := repo.NewRunRepo()
	bus := events.New(events.Config{Buffer: 256})
	driver := worker.New(worker.Config{Store: store, Publisher: bus, StageDelay: time.Millisecond})
	orch := orchestrator.New(orchestrator.Config{Repo: store, Driver: driver})

	srv := httptest.NewServer(api.NewHandler(api.Config{Runs: orch, Bus: bus}).Routes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Stop(ctx)
		_ = bus.Close()
		srv.Close()
	})
	return srv
}

func TestClient_Runs(t *testing.T) {
	srv := newServer(t)
	client := NewClient(srv.URL + "/")

	status, err := client.Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", status)

	runs, err := client.ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)

	id, err := client.StartRun(map[string]any{"branch": "main"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		run, err := client.GetRun(id)
		return err == nil && run.Status == "success"
	}, 5*time.Second, 5*time.Millisecond)

	run, err := client.GetRun(id)
	require.NoError(t, err)
	assert.Len(t, run.Stages, 6)
	assert.Equal(t, "deploy", run.CurrentStage())
	assert.Equal(t, "main", run.Payload["branch"])

	runs, err = client.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestClient_GetRunNotFound(t *testing.T) {
	srv := newServer(t)
	client := NewClient(srv.URL)

	_, err := client.GetRun("00000000-0000-0000-0000-000000000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestClient_Watch(t *testing.T) {
	srv := newServer(t)
	client := NewClient(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Subscribe(ctx)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, client.EmitTest())

	msg, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "log", msg.Event)

	ev, err := msg.Decode()
	require.NoError(t, err)
	assert.Equal(t, LogEvent{PID: "manual", Stage: "manual", Msg: "Manual emit test"}, ev)
}

func TestRunStartWatch(t *testing.T) {
	srv := newServer(t)

	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(srv.URL) }
	outputFn := func() *Output { return NewOutputTo(false, &stdout, &stderr) }

	root := &cobra.Command{Use: "pipesim", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(NewRunCmd(clientFn, outputFn))
	root.SetArgs([]string{"run", "start", "--watch", "--input", "branch=main"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, root.ExecuteContext(ctx))

	assert.Contains(t, stderr.String(), "Run started:")

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 13)
	assert.Contains(t, lines[0], "Starting checkout")
	assert.Contains(t, lines[11], "Finished deploy")
	assert.Contains(t, lines[12], "pipeline done")
}

func TestOutput_JSONAndTable(t *testing.T) {
	var buf bytes.Buffer

	NewOutputTo(false, &buf, &buf).Print([]string{"ID", "STATUS"}, [][]string{{"a", "running"}}, nil)
	assert.Contains(t, buf.String(), "ID")
	assert.Contains(t, buf.String(), "running")

	buf.Reset()
	NewOutputTo(true, &buf, &buf).Print(nil, nil, StartRunResponse{ID: "x"})
	var got StartRunResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "x", got.ID)
}

func TestParseInputs(t *testing.T) {
	payload, err := parseInputs(nil)
	require.NoError(t, err)
	assert.Nil(t, payload)

	payload, err = parseInputs([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y"}, payload)

	_, err = parseInputs([]string{"novalue"})
	require.Error(t, err)
}
