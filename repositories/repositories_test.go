package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/deploykit/database"
	"github.com/deploykit/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func newProject(name string) *models.Project {
	return &models.Project{
		Name:          name,
		RepositoryURL: "https://github.com/acme/" + name + ".git",
		Framework:     models.FrameworkReact,
		APIKey:        "key-" + name,
	}
}

func TestCreateWithNextPortIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(openTestDB(t))

	for i, want := range []int{FirstPort, FirstPort + 1, FirstPort + 2} {
		p := newProject(fmt.Sprintf("app%d", i))
		if err := repo.CreateWithNextPort(ctx, p, 1); err != nil {
			t.Fatal(err)
		}
		if p.Port != want {
			t.Errorf("project %d port = %d, want %d", i, p.Port, want)
		}
	}
}

func TestCreateWithNextPortSkipsOverDeletedMaximum(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(openTestDB(t))

	a, b := newProject("a"), newProject("b")
	if err := repo.CreateWithNextPort(ctx, a, 1); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateWithNextPort(ctx, b, 1); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	c := newProject("c")
	if err := repo.CreateWithNextPort(ctx, c, 1); err != nil {
		t.Fatal(err)
	}
	if c.Port != b.Port+1 {
		t.Errorf("port = %d, want %d", c.Port, b.Port+1)
	}
}

func TestCreateWithNextPortConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(openTestDB(t))

	const n = 10
	ports := make([]int, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := newProject(fmt.Sprintf("concurrent%d", i))
			if err := repo.CreateWithNextPort(ctx, p, 1); err != nil {
				errs <- err
				return
			}
			ports[i] = p.Port
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	sort.Ints(ports)
	for i, port := range ports {
		if port != FirstPort+i {
			t.Fatalf("ports = %v, want a gapless run from %d", ports, FirstPort)
		}
	}
}

func TestCreateWithNextPortExhausted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewProjectRepository(db)
	var outcomes []string
	repo.ObservePortAllocations(func(outcome string) { outcomes = append(outcomes, outcome) })

	last := newProject("last")
	last.Port = LastPort
	if err := db.Create(last).Error; err != nil {
		t.Fatal(err)
	}
	err := repo.CreateWithNextPort(ctx, newProject("overflow"), 1)
	if !errors.Is(err, ErrPortRangeExhausted) {
		t.Fatalf("expected ErrPortRangeExhausted, got %v", err)
	}
	if len(outcomes) != 1 || outcomes[0] != "exhausted" {
		t.Errorf("outcomes = %v", outcomes)
	}
}

func TestCreateRecordsOwnerMembership(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	projects := NewProjectRepository(db)
	members := NewMemberRepository(db)

	p := newProject("owned")
	if err := projects.CreateWithNextPort(ctx, p, 42); err != nil {
		t.Fatal(err)
	}
	role, err := members.FindRole(ctx, p.ID, 42)
	if err != nil {
		t.Fatal(err)
	}
	if role != models.MemberRoleOwner {
		t.Errorf("role = %q", role)
	}
	if _, err := members.FindRole(ctx, p.ID, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("stranger role err = %v", err)
	}
	list, err := members.FindByProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].UserID != 42 || list[0].Role != models.MemberRoleOwner {
		t.Errorf("members = %+v", list)
	}

	mine, err := projects.FindForUser(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != p.ID {
		t.Errorf("FindForUser = %+v", mine)
	}
	if others, _ := projects.FindForUser(ctx, 7); len(others) != 0 {
		t.Errorf("stranger sees %d projects", len(others))
	}
}

func TestFindForUserAttachesLastDeployment(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	projects := NewProjectRepository(db)
	deployments := NewDeploymentRepository(db)

	p := newProject("withdeploys")
	if err := projects.CreateWithNextPort(ctx, p, 1); err != nil {
		t.Fatal(err)
	}
	first := &models.Deployment{ProjectID: p.ID, Status: models.DeploymentStatusQueued}
	second := &models.Deployment{ProjectID: p.ID, Status: models.DeploymentStatusQueued}
	if err := deployments.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := deployments.Create(ctx, second); err != nil {
		t.Fatal(err)
	}

	list, err := projects.FindForUser(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if list[0].LastDeployment == nil || list[0].LastDeployment.ID != second.ID {
		t.Errorf("last deployment = %+v, want id %d", list[0].LastDeployment, second.ID)
	}
}

func TestFindByAPIKey(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(openTestDB(t))
	p := newProject("hooked")
	if err := repo.CreateWithNextPort(ctx, p, 1); err != nil {
		t.Fatal(err)
	}
	got, err := repo.FindByAPIKey(ctx, "key-hooked")
	if err != nil || got.ID != p.ID {
		t.Fatalf("FindByAPIKey = %+v, %v", got, err)
	}
	if _, err := repo.FindByAPIKey(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown key err = %v", err)
	}
}

func TestUpdateEnvRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(openTestDB(t))
	p := newProject("env")
	if err := repo.CreateWithNextPort(ctx, p, 1); err != nil {
		t.Fatal(err)
	}
	env := models.EnvVars{"API_URL": "https://x", "MULTI": "a\nb"}
	if err := repo.UpdateEnv(ctx, p.ID, env); err != nil {
		t.Fatal(err)
	}
	got, err := repo.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EnvVariables["MULTI"] != "a\nb" || got.EnvVariables["API_URL"] != "https://x" {
		t.Errorf("env = %v", got.EnvVariables)
	}
	if err := repo.UpdateEnv(ctx, 9999, env); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing project err = %v", err)
	}
}

func TestDeploymentLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewDeploymentRepository(db)

	d := &models.Deployment{ProjectID: 1, Status: models.DeploymentStatusQueued}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkBuilding(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendLogs(ctx, d.ID, "line 1\n"); err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendLogs(ctx, d.ID, "line 2\n"); err != nil {
		t.Fatal(err)
	}

	got, _ := repo.FindByID(ctx, d.ID)
	if got.Status != models.DeploymentStatusBuilding || got.BuildLogs != "line 1\nline 2\n" {
		t.Fatalf("after building: %+v", got)
	}

	err := repo.Finish(ctx, d.ID, Finish{
		Status:    models.DeploymentStatusReady,
		URL:       "https://a.example.com",
		Duration:  12,
		BuildLogs: "line 1\nline 2\ndone\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ = repo.FindByID(ctx, d.ID)
	if got.Status != models.DeploymentStatusReady || got.URL != "https://a.example.com" || got.Duration != 12 {
		t.Errorf("after finish: %+v", got)
	}

	// Terminal rows never change again.
	if err := repo.AppendLogs(ctx, d.ID, "late\n"); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("AppendLogs after finish err = %v", err)
	}
	err = repo.Finish(ctx, d.ID, Finish{Status: models.DeploymentStatusError})
	if !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("second Finish err = %v", err)
	}
	got, _ = repo.FindByID(ctx, d.ID)
	if got.Status != models.DeploymentStatusReady || got.BuildLogs != "line 1\nline 2\ndone\n" {
		t.Errorf("terminal row changed: %+v", got)
	}
}

func TestDeploymentErrorKeepsNoURL(t *testing.T) {
	ctx := context.Background()
	repo := NewDeploymentRepository(openTestDB(t))
	d := &models.Deployment{ProjectID: 1, Status: models.DeploymentStatusQueued}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatal(err)
	}
	err := repo.Finish(ctx, d.ID, Finish{Status: models.DeploymentStatusError, URL: "https://ignored", BuildLogs: "boom\n"})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := repo.FindByID(ctx, d.ID)
	if got.URL != "" || got.Status != models.DeploymentStatusError {
		t.Errorf("got %+v", got)
	}
}

func TestDeploymentMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewDeploymentRepository(openTestDB(t))
	if _, err := repo.FindByID(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID err = %v", err)
	}
	if err := repo.AppendLogs(ctx, 404, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendLogs err = %v", err)
	}
}
