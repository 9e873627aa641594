package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploykit/config"
	"github.com/deploykit/lib/remote"
	"github.com/deploykit/models"
	"github.com/deploykit/utils"
)

type harness struct {
	projects    *fakeProjects
	deployments *fakeDeployments
	runner      *fakeRunner
	publisher   *recordingPublisher
	svc         *DeploymentService
}

func newHarness(t *testing.T, ssh config.SSHConfig, projects ...models.Project) *harness {
	t.Helper()
	h := &harness{
		projects:    newFakeProjects(projects...),
		deployments: newFakeDeployments(),
		runner:      &fakeRunner{},
		publisher:   &recordingPublisher{},
	}
	h.svc = NewDeploymentService(DeploymentServiceDeps{
		Projects:    h.projects,
		Deployments: h.deployments,
		Runner:      h.runner,
		SSH:         ssh,
		Publisher:   h.publisher,
		Platform:    testPlatform,
		Log:         testLog(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.svc.Shutdown(ctx)
	})
	return h
}

func wait(t *testing.T, a *Attempt) (models.Deployment, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := a.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("attempt did not finish")
	}
	return d, err
}

func TestDeployScenarioReady(t *testing.T) {
	h := newHarness(t, testSSH, scenarioProject())
	h.runner.fn = func(_ context.Context, script string, out remote.OutputHandler) error {
		out(remote.Chunk{Stream: remote.Stdout, Data: "==> Building image\n"})
		out(remote.Chunk{Stream: remote.Stderr, Data: "step 1/5\n"})
		out(remote.Chunk{Stream: remote.Stdout, Data: "deployment.apps/shop-front configured\n"})
		return nil
	}

	attempt, err := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 1, CommitMessage: "init"})
	if err != nil {
		t.Fatal(err)
	}
	if got := attempt.Deployment().Status; got != models.DeploymentStatusBuilding && !got.Terminal() {
		t.Errorf("returned status = %q", got)
	}

	d, err := wait(t, attempt)
	if err != nil {
		t.Fatalf("attempt error: %v", err)
	}
	if d.Status != models.DeploymentStatusReady {
		t.Fatalf("status = %q", d.Status)
	}
	if d.URL != "https://a.example.com" {
		t.Errorf("url = %q", d.URL)
	}
	if d.Branch != "main" || d.Commit != "HEAD" || d.CommitMessage != "init" {
		t.Errorf("unexpected source fields %+v", d)
	}
	for _, line := range []string{"==> Building image", "step 1/5", "shop-front configured"} {
		if !strings.Contains(d.BuildLogs, line) {
			t.Errorf("persisted log missing %q:\n%s", line, d.BuildLogs)
		}
	}
	if h.runner.sessionCount() != 1 {
		t.Errorf("sessions = %d, want 1", h.runner.sessionCount())
	}
	if got := h.publisher.statuses(d.ID); strings.Join(got, ",") != "building,ready" {
		t.Errorf("status events = %v", got)
	}
	if !strings.Contains(h.publisher.logs(d.ID), "step 1/5") {
		t.Error("log chunk was not broadcast")
	}
	if !strings.Contains(h.runner.scripts[0], "kubectl apply -n apps -f manifests/redis.yaml") {
		t.Error("script does not apply the redis manifest")
	}
}

func TestDeployMissingSSHConfiguration(t *testing.T) {
	h := newHarness(t, config.SSHConfig{}, scenarioProject())

	attempt, err := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 1})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-attempt.Done():
	default:
		t.Fatal("attempt should already be finished")
	}

	d := attempt.Deployment()
	if d.Status != models.DeploymentStatusError {
		t.Errorf("status = %q", d.Status)
	}
	if !strings.Contains(d.BuildLogs, "Missing SSH configuration") {
		t.Errorf("log = %q", d.BuildLogs)
	}
	var cfgErr *ConfigurationError
	if !errors.As(attempt.Err(), &cfgErr) {
		t.Errorf("err = %v", attempt.Err())
	}
	if h.runner.sessionCount() != 0 {
		t.Errorf("sessions = %d, want 0", h.runner.sessionCount())
	}
	stored, _ := h.deployments.FindByID(context.Background(), d.ID)
	if stored.Status != models.DeploymentStatusError || stored.URL != "" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestDeployUnknownProject(t *testing.T) {
	h := newHarness(t, testSSH)

	_, err := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 99})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if h.deployments.count() != 0 {
		t.Error("a deployment was recorded for a missing project")
	}
	if len(h.publisher.events) != 0 {
		t.Error("events were published for a missing project")
	}
}

func TestDeployExecutionErrorKeepsOutput(t *testing.T) {
	h := newHarness(t, testSSH, scenarioProject())
	h.runner.fn = func(_ context.Context, _ string, out remote.OutputHandler) error {
		out(remote.Chunk{Data: "npm ERR! missing script: build\n"})
		return &remote.ExecutionError{ExitCode: 1}
	}

	attempt, err := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 1})
	if err != nil {
		t.Fatal(err)
	}
	d, err := wait(t, attempt)

	var execErr *remote.ExecutionError
	if !errors.As(err, &execErr) || execErr.ExitCode != 1 {
		t.Fatalf("err = %v", err)
	}
	if d.Status != models.DeploymentStatusError || d.URL != "" {
		t.Errorf("deployment = %+v", d)
	}
	if !strings.Contains(d.BuildLogs, "npm ERR! missing script") {
		t.Errorf("output before the failure was lost:\n%s", d.BuildLogs)
	}
	if !strings.Contains(d.BuildLogs, "exited with status 1") {
		t.Errorf("diagnostic missing:\n%s", d.BuildLogs)
	}
}

func TestDeployConnectionError(t *testing.T) {
	h := newHarness(t, testSSH, scenarioProject())
	h.runner.fn = func(context.Context, string, remote.OutputHandler) error {
		return &remote.ConnectionError{Addr: "10.0.0.5:22", Stage: "dial", Err: errors.New("connection refused")}
	}

	attempt, _ := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 1})
	d, err := wait(t, attempt)

	var connErr *remote.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v", err)
	}
	if d.Status != models.DeploymentStatusError || !strings.Contains(d.BuildLogs, "connection refused") {
		t.Errorf("deployment = %+v", d)
	}
}

func TestDeploySerializesPerApp(t *testing.T) {
	other := scenarioProject()
	other.ID = 2
	other.Name = "Other App"
	h := newHarness(t, testSSH, scenarioProject(), other)

	var active, maxActive, started int32
	release := make(chan struct{})
	h.runner.fn = func(_ context.Context, script string, _ remote.OutputHandler) error {
		atomic.AddInt32(&started, 1)
		if strings.Contains(script, "shop-front") {
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			defer atomic.AddInt32(&active, -1)
		}
		<-release
		return nil
	}

	waitStarted := func(n int32) {
		deadline := time.Now().Add(2 * time.Second)
		for atomic.LoadInt32(&started) < n && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}

	ctx := context.Background()
	first, _ := h.svc.Deploy(ctx, DeployRequest{ProjectID: 1})
	waitStarted(1)
	second, _ := h.svc.Deploy(ctx, DeployRequest{ProjectID: 1})
	third, _ := h.svc.Deploy(ctx, DeployRequest{ProjectID: 2})

	// The first shop-front attempt and the other app run; the second waits.
	waitStarted(2)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&started); got != 2 {
		t.Fatalf("sessions started = %d, want 2", got)
	}

	close(release)
	for _, a := range []*Attempt{first, second, third} {
		if d, err := wait(t, a); err != nil || d.Status != models.DeploymentStatusReady {
			t.Errorf("attempt %d: %q %v", d.ID, d.Status, err)
		}
	}
	if atomic.LoadInt32(&maxActive) != 1 {
		t.Errorf("shop-front attempts overlapped: max %d", maxActive)
	}
	if !strings.Contains(second.Deployment().BuildLogs, "Waiting for the previous deployment") {
		t.Errorf("queued attempt should say it waited:\n%s", second.Deployment().BuildLogs)
	}
}

func TestDeployCancel(t *testing.T) {
	h := newHarness(t, testSSH, scenarioProject())
	h.runner.fn = func(ctx context.Context, _ string, out remote.OutputHandler) error {
		out(remote.Chunk{Data: "cloning\n"})
		<-ctx.Done()
		return ctx.Err()
	}

	attempt, _ := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 1})
	attempt.Cancel()
	d, err := wait(t, attempt)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if d.Status != models.DeploymentStatusError {
		t.Errorf("status = %q", d.Status)
	}
	if !strings.Contains(d.BuildLogs, "Deployment cancelled") {
		t.Errorf("log = %q", d.BuildLogs)
	}
}

func TestShutdownWaitsForAttempts(t *testing.T) {
	h := newHarness(t, testSSH, scenarioProject())
	h.runner.fn = func(ctx context.Context, _ string, _ remote.OutputHandler) error {
		<-ctx.Done()
		return ctx.Err()
	}

	attempt, _ := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.svc.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-attempt.Done():
	default:
		t.Fatal("Shutdown returned before the attempt finished")
	}
	stored, _ := h.deployments.FindByID(context.Background(), attempt.Deployment().ID)
	if stored.Status != models.DeploymentStatusError {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestDeployCallsCallback(t *testing.T) {
	got := make(chan utils.WebhookNotification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n utils.WebhookNotification
		_ = json.NewDecoder(r.Body).Decode(&n)
		got <- n
	}))
	defer srv.Close()

	h := newHarness(t, testSSH, scenarioProject())
	attempt, _ := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 1, CallbackURL: srv.URL})
	d, _ := wait(t, attempt)

	select {
	case n := <-got:
		if n.Status != "ready" || n.DeploymentID != d.ID || n.URL != "https://a.example.com" {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not called")
	}
}

func TestFindOneChecksProject(t *testing.T) {
	h := newHarness(t, testSSH, scenarioProject())
	attempt, _ := h.svc.Deploy(context.Background(), DeployRequest{ProjectID: 1})
	d, _ := wait(t, attempt)

	if _, err := h.svc.FindOne(context.Background(), 1, d.ID); err != nil {
		t.Errorf("FindOne: %v", err)
	}
	if _, err := h.svc.FindOne(context.Background(), 2, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign project err = %v", err)
	}
	list, err := h.svc.FindAll(context.Background(), 1)
	if err != nil || len(list) != 1 {
		t.Errorf("FindAll = %v, %v", list, err)
	}
	if _, err := h.svc.FindAll(context.Background(), 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindAll unknown project err = %v", err)
	}
}
