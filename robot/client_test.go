package robot_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neyho/eywa-go/files"
	"github.com/neyho/eywa-go/robot"
	"github.com/neyho/eywa-go/shared"
	"github.com/neyho/eywa-go/shared/config"
	"github.com/neyho/eywa-go/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

type frame struct {
	ID     json.RawMessage  `json:"id,omitempty"`
	Method string           `json:"method,omitempty"`
	Params json.RawMessage  `json:"params,omitempty"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  *json.RawMessage `json:"error,omitempty"`
}

// orchestrator plays the parent process: it answers task.get and the file
// GraphQL documents and records every notification.
type orchestrator struct {
	t      *testing.T
	toBot  *io.PipeWriter
	store  *httptest.Server
	mu     sync.Mutex
	notes  []frame
	events chan frame
	stored map[string]string
}

func start(t *testing.T, options ...robot.ClientOption) (*robot.Client, *orchestrator, *[]int) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	o := &orchestrator{t: t, toBot: inW, events: make(chan frame, 100), stored: make(map[string]string)}
	o.store = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		o.mu.Lock()
		o.stored[r.URL.Path] = string(data)
		o.mu.Unlock()
	}))
	t.Cleanup(o.store.Close)

	var mu sync.Mutex
	var codes []int
	options = append([]robot.ClientOption{
		robot.WithStreams(inR, outW),
		robot.WithLogger(zaptest.NewLogger(t)),
		robot.WithExit(func(code int) {
			mu.Lock()
			codes = append(codes, code)
			mu.Unlock()
		}),
	}, options...)
	client, err := robot.New(options...)
	require.NoError(t, err)

	go o.serve(outR)
	client.Start()
	t.Cleanup(func() {
		inW.Close()
		client.Close()
		outR.Close()
	})
	return client, o, &codes
}

func (o *orchestrator) serve(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			o.t.Errorf("invalid frame %q: %v", scanner.Text(), err)
			return
		}
		switch {
		case f.Method == "":
			o.events <- f
		case len(f.ID) == 0:
			o.mu.Lock()
			o.notes = append(o.notes, f)
			o.mu.Unlock()
			o.events <- f
		case f.Method == shared.MethodTaskGet:
			o.reply(f.ID, map[string]interface{}{"euuid": "task-1", "data": map[string]int{"count": 3}})
		case f.Method == shared.MethodGraphQL:
			o.reply(f.ID, o.graphql(f.Params))
		default:
			o.send(map[string]interface{}{"jsonrpc": "2.0", "id": f.ID, "error": map[string]interface{}{"code": -32601, "message": "unknown"}})
		}
	}
}

func (o *orchestrator) graphql(params json.RawMessage) map[string]interface{} {
	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	switch {
	case strings.Contains(req.Query, "requestUploadURL"):
		file := req.Variables["file"].(map[string]interface{})
		return map[string]interface{}{"data": map[string]interface{}{"requestUploadURL": o.store.URL + "/" + file["euuid"].(string)}}
	case strings.Contains(req.Query, "confirmFileUpload"):
		return map[string]interface{}{"data": map[string]interface{}{"confirmFileUpload": true}}
	}
	return map[string]interface{}{"error": "unsupported document"}
}

func (o *orchestrator) reply(id json.RawMessage, result interface{}) {
	o.send(map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": result})
}

func (o *orchestrator) send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		o.t.Errorf("marshal: %v", err)
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.toBot.Write(append(data, '\n')); err != nil {
		o.t.Logf("write to robot: %v", err)
	}
}

func (o *orchestrator) notifications(method string) []frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []frame
	for _, n := range o.notes {
		if n.Method == method {
			out = append(out, n)
		}
	}
	return out
}

func (o *orchestrator) next(t *testing.T) frame {
	t.Helper()
	select {
	case f := <-o.events:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the robot")
		return frame{}
	}
}

func TestRobotRunsTaskToCompletion(t *testing.T) {
	client, orch, codes := start(t)
	ctx := context.Background()

	require.NoError(t, client.Task.Update(task.StatusProcessing))

	var current struct {
		EUUID string `json:"euuid"`
	}
	require.NoError(t, client.Task.Get(ctx, &current))
	assert.Equal(t, "task-1", current.EUUID)

	euuid := uuid.NewString()
	s, err := client.Files.Upload(ctx, files.FromString("robot output"), files.FileInput{Name: "out.txt", EUUID: euuid})
	require.NoError(t, err)
	assert.Equal(t, files.StateDone, s.State)

	require.NoError(t, client.Task.Report("finished", map[string]int{"files": 1}, ""))
	require.NoError(t, client.Task.Close(task.StatusSuccess))
	assert.Equal(t, []int{0}, *codes)

	orch.mu.Lock()
	assert.Equal(t, "robot output", orch.stored["/"+euuid])
	orch.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(orch.notifications(shared.MethodTaskClose)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	var order []string
	orch.mu.Lock()
	for _, n := range orch.notes {
		order = append(order, n.Method)
	}
	orch.mu.Unlock()
	assert.Equal(t, []string{shared.MethodTaskUpdate, shared.MethodTaskReport, shared.MethodTaskClose}, order)
}

func TestRobotHandlesInboundRequests(t *testing.T) {
	client, orch, _ := start(t)
	client.Handle("robot.ping", func(msg *shared.Message) (interface{}, error) {
		return "pong", nil
	})

	orch.send(map[string]interface{}{"jsonrpc": "2.0", "id": 11, "method": "robot.ping"})
	f := orch.next(t)
	assert.Equal(t, "11", string(f.ID))
	assert.Equal(t, `"pong"`, string(f.Result))

	orch.send(map[string]interface{}{"jsonrpc": "2.0", "id": 12, "method": "rpc.reserved"})
	f = orch.next(t)
	require.NotNil(t, f.Error)
	assert.Contains(t, string(*f.Error), "-32601")
}

func TestRobotInboundRateLimit(t *testing.T) {
	cfg := config.NewInternalConfig()
	cfg.SetInboundRPS(1)
	client, orch, _ := start(t, robot.WithConfig(cfg))
	client.Handle("robot.ping", func(*shared.Message) (interface{}, error) { return "pong", nil })

	orch.send(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "robot.ping"})
	orch.send(map[string]interface{}{"jsonrpc": "2.0", "id": 2, "method": "robot.ping"})

	first, second := orch.next(t), orch.next(t)
	assert.Equal(t, `"pong"`, string(first.Result))
	require.NotNil(t, second.Error)
	assert.Contains(t, string(*second.Error), "-32005")

	cfg.SetInboundRPS(0)
	require.NoError(t, client.ApplyConfig(cfg))
	orch.send(map[string]interface{}{"jsonrpc": "2.0", "id": 3, "method": "robot.ping"})
	assert.Equal(t, `"pong"`, string(orch.next(t).Result))
}

func TestTaskLoggerForwardsToTaskLog(t *testing.T) {
	client, orch, _ := start(t)

	logger := client.TaskLogger(zapcore.WarnLevel)
	logger.Info("stays local")
	logger.Warn("shown in task", zap.String("page", "login"))

	f := orch.next(t)
	assert.Equal(t, shared.MethodTaskLog, f.Method)
	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(f.Params, &params))
	assert.Equal(t, "WARN", params["event"])
	assert.Equal(t, "shown in task", params["message"])
	assert.Equal(t, map[string]interface{}{"page": "login"}, params["data"])
	assert.Len(t, orch.notifications(shared.MethodTaskLog), 1)
}

func TestRobotMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	client, orch, _ := start(t, robot.WithRegisterer(registry))

	require.NoError(t, client.Task.Update(task.StatusProcessing))
	orch.next(t)
	require.NoError(t, client.Session.Flush(context.Background()))

	families, err := registry.Gather()
	require.NoError(t, err)
	var sent float64
	for _, family := range families {
		if family.GetName() != "eywa_robot_frames_sent_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			sent += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), sent)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := robot.New(robot.WithStreams(nil, nil))
	assert.Error(t, err)
	_, err = robot.New(robot.WithConfig(nil))
	assert.Error(t, err)
}
