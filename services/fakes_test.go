package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deploykit/config"
	"github.com/deploykit/lib/broadcast"
	"github.com/deploykit/lib/remote"
	"github.com/deploykit/models"
	"github.com/deploykit/repositories"
	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeProjects struct {
	mu       sync.Mutex
	projects map[uint]models.Project
	nextPort int
}

func newFakeProjects(projects ...models.Project) *fakeProjects {
	f := &fakeProjects{projects: map[uint]models.Project{}, nextPort: repositories.FirstPort}
	for _, p := range projects {
		f.projects[p.ID] = p
	}
	return f
}

func (f *fakeProjects) CreateWithNextPort(_ context.Context, p *models.Project, _ uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uint(len(f.projects) + 1)
	p.Port = f.nextPort
	f.nextPort++
	f.projects[p.ID] = *p
	return nil
}

func (f *fakeProjects) FindByID(_ context.Context, id uint) (models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return models.Project{}, repositories.ErrNotFound
	}
	p.EnvVariables = p.EnvVariables.Clone()
	return p, nil
}

func (f *fakeProjects) FindByAPIKey(_ context.Context, key string) (models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.APIKey == key {
			return p, nil
		}
	}
	return models.Project{}, repositories.ErrNotFound
}

func (f *fakeProjects) FindForUser(_ context.Context, userID uint) ([]models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Project
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProjects) Update(_ context.Context, id uint, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return repositories.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "name":
			p.Name = v.(string)
		case "domain":
			p.Domain = v.(string)
		case "framework":
			p.Framework = v.(string)
		case "db_type":
			p.DBType = v.(models.DBType)
		case "use_redis":
			p.UseRedis = v.(bool)
		}
	}
	f.projects[id] = p
	return nil
}

func (f *fakeProjects) UpdateEnv(_ context.Context, id uint, env models.EnvVars) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return repositories.ErrNotFound
	}
	p.EnvVariables = env.Clone()
	f.projects[id] = p
	return nil
}

func (f *fakeProjects) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

// fakeDeployments enforces the same monotonic rules as the gorm repository.
type fakeDeployments struct {
	mu          sync.Mutex
	deployments map[uint]*models.Deployment
	appends     int
}

func newFakeDeployments() *fakeDeployments {
	return &fakeDeployments{deployments: map[uint]*models.Deployment{}}
}

func (f *fakeDeployments) Create(_ context.Context, d *models.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.ID = uint(len(f.deployments) + 1)
	d.CreatedAt = time.Now()
	cp := *d
	f.deployments[d.ID] = &cp
	return nil
}

func (f *fakeDeployments) FindByID(_ context.Context, id uint) (models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return models.Deployment{}, repositories.ErrNotFound
	}
	return *d, nil
}

func (f *fakeDeployments) FindByProject(_ context.Context, projectID uint, _ int) ([]models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Deployment
	for _, d := range f.deployments {
		if d.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeDeployments) active(id uint) (*models.Deployment, error) {
	d, ok := f.deployments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if d.Status.Terminal() {
		return nil, repositories.ErrAlreadyFinished
	}
	return d, nil
}

func (f *fakeDeployments) MarkBuilding(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.active(id)
	if err != nil {
		return err
	}
	d.Status = models.DeploymentStatusBuilding
	return nil
}

func (f *fakeDeployments) AppendLogs(_ context.Context, id uint, chunk string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.active(id)
	if err != nil {
		return err
	}
	d.BuildLogs += chunk
	f.appends++
	return nil
}

func (f *fakeDeployments) Finish(_ context.Context, id uint, fin repositories.Finish) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.active(id)
	if err != nil {
		return err
	}
	d.Status = fin.Status
	d.Duration = fin.Duration
	d.BuildLogs = fin.BuildLogs
	if fin.Status == models.DeploymentStatusReady {
		d.URL = fin.URL
	}
	return nil
}

func (f *fakeDeployments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deployments)
}

// fakeRunner hands every Run to fn and counts sessions.
type fakeRunner struct {
	sessions int32
	mu       sync.Mutex
	scripts  []string
	fn       func(ctx context.Context, script string, onOutput remote.OutputHandler) error
}

func (r *fakeRunner) Run(ctx context.Context, script string, onOutput remote.OutputHandler) error {
	atomic.AddInt32(&r.sessions, 1)
	r.mu.Lock()
	r.scripts = append(r.scripts, script)
	r.mu.Unlock()
	if r.fn == nil {
		return nil
	}
	return r.fn(ctx, script, onOutput)
}

func (r *fakeRunner) sessionCount() int {
	return int(atomic.LoadInt32(&r.sessions))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (p *recordingPublisher) Publish(evt broadcast.Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *recordingPublisher) statuses(deploymentID uint) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.Type == broadcast.EventStatus && e.DeploymentID == deploymentID {
			out = append(out, e.Status)
		}
	}
	return out
}

func (p *recordingPublisher) logs(deploymentID uint) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out string
	for _, e := range p.events {
		if e.Type == broadcast.EventLog && e.DeploymentID == deploymentID {
			out += e.Log
		}
	}
	return out
}

var testSSH = config.SSHConfig{Host: "10.0.0.5", Port: 22, User: "deployer", PrivateKey: "-----BEGIN KEY-----"}

var testPlatform = Platform{
	RegistryHost:     "10.0.0.5:5000",
	RegistryPullHost: "localhost:5000",
	WorkDir:          "deployments",
	Namespace:        "apps",
	IngressClass:     "nginx",
	ClusterIssuer:    "letsencrypt-production",
	PublicHost:       "10.0.0.5",
}
