package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deploykit/config"
	"github.com/deploykit/lib/broadcast"
	"github.com/deploykit/lib/metrics"
	"github.com/deploykit/lib/remote"
	"github.com/deploykit/models"
	"github.com/deploykit/repositories"
	"github.com/deploykit/utils"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// finalWriteTimeout bounds the terminal database write, which must happen
// even after the attempt context was cancelled.
const finalWriteTimeout = 30 * time.Second

// ProjectFinder loads projects for the orchestrator
type ProjectFinder interface {
	FindByID(ctx context.Context, id uint) (models.Project, error)
}

// DeploymentStore persists deployment records
type DeploymentStore interface {
	Create(ctx context.Context, deployment *models.Deployment) error
	FindByID(ctx context.Context, id uint) (models.Deployment, error)
	FindByProject(ctx context.Context, projectID uint, limit int) ([]models.Deployment, error)
	MarkBuilding(ctx context.Context, id uint) error
	AppendLogs(ctx context.Context, id uint, chunk string) error
	Finish(ctx context.Context, id uint, f repositories.Finish) error
}

// DeployRequest starts one attempt. Branch defaults to the project's default
// branch, Commit to the branch head.
type DeployRequest struct {
	ProjectID     uint
	Branch        string
	Commit        string
	CommitMessage string
	CallbackURL   string
}

// DeploymentServiceDeps wires a DeploymentService.
type DeploymentServiceDeps struct {
	Projects    ProjectFinder
	Deployments DeploymentStore
	// Runner is ignored when SSH is not configured.
	Runner    remote.Runner
	SSH       config.SSHConfig
	Publisher broadcast.Publisher
	Platform  Platform
	Metrics   *metrics.Metrics
	NewRelic  *newrelic.Application
	Log       *logrus.Entry
}

// DeploymentService drives deployments from QUEUED to READY or ERROR
type DeploymentService struct {
	projects    ProjectFinder
	deployments DeploymentStore
	runner      remote.Runner
	ssh         config.SSHConfig
	publisher   broadcast.Publisher
	platform    Platform
	metrics     *metrics.Metrics
	nr          *newrelic.Application
	log         *logrus.Entry

	locks  *utils.KeyedMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDeploymentService creates a new deployment service instance
func NewDeploymentService(deps DeploymentServiceDeps) *DeploymentService {
	ctx, cancel := context.WithCancel(context.Background())
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DeploymentService{
		projects:    deps.Projects,
		deployments: deps.Deployments,
		runner:      deps.Runner,
		ssh:         deps.SSH,
		publisher:   deps.Publisher,
		platform:    deps.Platform,
		metrics:     deps.Metrics,
		nr:          deps.NewRelic,
		log:         log,
		locks:       utils.NewKeyedMutex(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Redeploy deploys the head of the project's default branch.
func (s *DeploymentService) Redeploy(ctx context.Context, projectID uint) (*Attempt, error) {
	return s.Deploy(ctx, DeployRequest{ProjectID: projectID})
}

// Deploy records a new attempt and starts it in the background. The returned
// Attempt already holds a BUILDING record, or a terminal ERROR record when the
// attempt could not start.
func (s *DeploymentService) Deploy(ctx context.Context, req DeployRequest) (*Attempt, error) {
	project, err := s.projects.FindByID(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	branch := req.Branch
	if branch == "" {
		branch = project.DefaultBranch
	}
	if branch == "" {
		branch = "main"
	}
	commit := req.Commit
	if commit == "" {
		commit = "HEAD"
	}

	started := time.Now()
	deployment := models.Deployment{
		ProjectID:     project.ID,
		Status:        models.DeploymentStatusQueued,
		Branch:        branch,
		Commit:        commit,
		CommitMessage: req.CommitMessage,
	}
	if err := s.deployments.Create(ctx, &deployment); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}
	log := s.log.WithFields(logrus.Fields{"project_id": project.ID, "deployment_id": deployment.ID})

	if missing := s.missingSSH(); len(missing) > 0 {
		cfgErr := &ConfigurationError{Missing: missing}
		log.WithError(cfgErr).Error("❌ Deployment rejected")
		s.metrics.AttemptRejected(string(models.DeploymentStatusError))
		attempt := newAttempt(deployment, nil)
		final := s.finish(log, attempt, project, req.CallbackURL, models.DeploymentStatusError, cfgErr.Error()+"\n", started)
		attempt.finish(final, cfgErr)
		return attempt, nil
	}

	if err := s.deployments.MarkBuilding(ctx, deployment.ID); err != nil {
		return nil, fmt.Errorf("mark deployment building: %w", err)
	}
	deployment.Status = models.DeploymentStatusBuilding
	s.metrics.AttemptStarted()
	s.publish(broadcast.StatusEvent(deployment.ID, string(deployment.Status)))

	plan, err := BuildPlan(PlanInput{
		Project: project,
		Branch:  branch,
		Commit:  req.Commit,
		Tag:     fmt.Sprint(deployment.ID),
	}, s.platform)
	if err != nil {
		log.WithError(err).Error("❌ Failed to render deployment")
		attempt := newAttempt(deployment, nil)
		final := s.finish(log, attempt, project, req.CallbackURL, models.DeploymentStatusError, "Failed to render deployment: "+err.Error()+"\n", started)
		attempt.finish(final, err)
		return attempt, nil
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	attempt := newAttempt(deployment, cancel)
	log.WithFields(logrus.Fields{"app": plan.AppName, "image": plan.Image}).Info("🚀 Deployment started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx, log, attempt, project, plan, req.CallbackURL, started)
	}()
	return attempt, nil
}

func (s *DeploymentService) run(ctx context.Context, log *logrus.Entry, attempt *Attempt, project models.Project, plan *Plan, callbackURL string, started time.Time) {
	deploymentID := attempt.Deployment().ID

	txn := s.nr.StartTransaction("deployment")
	defer txn.End()
	txn.AddAttribute("deploymentId", deploymentID)
	txn.AddAttribute("appName", plan.AppName)
	ctx = newrelic.NewContext(ctx, txn)

	var logs strings.Builder
	emit := func(chunk string) {
		logs.WriteString(chunk)
		s.metrics.LogBytes(len(chunk))
		if err := s.deployments.AppendLogs(ctx, deploymentID, chunk); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Failed to persist log chunk")
		}
		s.publish(broadcast.LogEvent(deploymentID, chunk))
	}

	if s.locks.Busy(plan.AppName) {
		emit(fmt.Sprintf("==> Waiting for the previous deployment of %s to finish\n", plan.AppName))
	}
	unlock, err := s.locks.Lock(ctx, plan.AppName)
	if err == nil {
		err = s.runner.Run(ctx, plan.Script, func(c remote.Chunk) { emit(c.Data) })
		unlock()
	}

	status := models.DeploymentStatusReady
	if err != nil {
		status = models.DeploymentStatusError
		txn.NoticeError(err)
		msg := diagnostic(err)
		logs.WriteString(msg)
		s.publish(broadcast.LogEvent(deploymentID, msg))
		log.WithError(err).Error("❌ Deployment failed")
	} else {
		log.WithField("elapsed", time.Since(started).Round(time.Second)).Info("✅ Deployment ready")
	}

	final := s.finish(log, attempt, project, callbackURL, status, logs.String(), started)
	attempt.finish(final, err)
}

// finish writes the terminal status together with the full log and announces it.
func (s *DeploymentService) finish(log *logrus.Entry, attempt *Attempt, project models.Project, callbackURL string, status models.DeploymentStatus, logs string, started time.Time) models.Deployment {
	d := attempt.Deployment()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), finalWriteTimeout)
	defer cancel()

	f := repositories.Finish{
		Status:    status,
		Duration:  int64(time.Since(started).Seconds()),
		BuildLogs: logs,
	}
	if status == models.DeploymentStatusReady {
		f.URL = PublicURL(project, s.platform)
	}
	if err := s.deployments.Finish(ctx, d.ID, f); err != nil {
		log.WithError(err).Error("Failed to record terminal status")
	}

	d.Status = f.Status
	d.URL = f.URL
	d.Duration = f.Duration
	d.BuildLogs = f.BuildLogs
	if stored, err := s.deployments.FindByID(ctx, d.ID); err == nil {
		d = stored
	}
	attempt.update(d)

	s.metrics.AttemptFinished(string(status), time.Since(started))
	s.publish(broadcast.StatusEvent(d.ID, string(status)))

	if callbackURL != "" {
		n := utils.WebhookNotification{
			DeploymentID: d.ID,
			ProjectID:    project.ID,
			Status:       string(status),
			URL:          d.URL,
		}
		if status == models.DeploymentStatusError {
			n.Error = lastLine(logs)
		}
		if err := utils.SendWebhookNotification(ctx, callbackURL, n); err != nil {
			log.WithError(err).Warn("Callback webhook failed")
		}
	}
	return d
}

func (s *DeploymentService) publish(evt broadcast.Event) {
	if s.publisher != nil {
		s.publisher.Publish(evt)
	}
}

func (s *DeploymentService) missingSSH() []string {
	var missing []string
	if strings.TrimSpace(s.ssh.Host) == "" {
		missing = append(missing, "SSH_HOST")
	}
	if strings.TrimSpace(s.ssh.PrivateKey) == "" {
		missing = append(missing, "SSH_KEY")
	}
	if len(missing) == 0 && s.runner == nil {
		missing = append(missing, "runner")
	}
	return missing
}

// diagnostic is the last line appended to the log of a failed attempt.
func diagnostic(err error) string {
	var connErr *remote.ConnectionError
	var execErr *remote.ExecutionError
	switch {
	case errors.Is(err, context.Canceled):
		return "==> Deployment cancelled\n"
	case errors.As(err, &connErr):
		return fmt.Sprintf("==> Connection error: %v\n", connErr)
	case errors.As(err, &execErr):
		return fmt.Sprintf("==> Deployment script failed: %v\n", execErr)
	default:
		return fmt.Sprintf("==> Deployment failed: %v\n", err)
	}
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// FindAll lists the deployments of a project, newest first.
func (s *DeploymentService) FindAll(ctx context.Context, projectID uint) ([]models.Deployment, error) {
	if _, err := s.projects.FindByID(ctx, projectID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.deployments.FindByProject(ctx, projectID, 0)
}

// Get returns a deployment by id regardless of its project.
func (s *DeploymentService) Get(ctx context.Context, deploymentID uint) (models.Deployment, error) {
	d, err := s.deployments.FindByID(ctx, deploymentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Deployment{}, ErrNotFound
	}
	return d, err
}

// FindOne returns a deployment that belongs to projectID.
func (s *DeploymentService) FindOne(ctx context.Context, projectID, deploymentID uint) (models.Deployment, error) {
	d, err := s.deployments.FindByID(ctx, deploymentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Deployment{}, ErrNotFound
		}
		return models.Deployment{}, err
	}
	if d.ProjectID != projectID {
		return models.Deployment{}, ErrNotFound
	}
	return d, nil
}

// Shutdown cancels running attempts and waits until they recorded their
// terminal status, or ctx ends.
func (s *DeploymentService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
