package services

import (
	"fmt"
	"strings"

	"github.com/deploykit/config"
	"github.com/deploykit/lib/remote"
	"github.com/deploykit/models"
	"github.com/deploykit/templates"
)

// Platform holds the cluster-wide settings an attempt is rendered with.
type Platform struct {
	RegistryHost     string
	RegistryPullHost string
	WorkDir          string
	Namespace        string
	IngressClass     string
	ClusterIssuer    string
	BaseDomain       string
	ExposeNodePort   bool
	PublicHost       string
}

// PlatformFromConfig copies the relevant settings out of cfg.
func PlatformFromConfig(cfg config.Config) Platform {
	return Platform{
		RegistryHost:     cfg.RegistryHost,
		RegistryPullHost: cfg.RegistryPullHost,
		WorkDir:          cfg.RemoteWorkDir,
		Namespace:        cfg.KubeNamespace,
		IngressClass:     cfg.IngressClass,
		ClusterIssuer:    cfg.ClusterIssuer,
		BaseDomain:       cfg.IngressBaseDomain,
		ExposeNodePort:   cfg.ExposeNodePort,
		PublicHost:       cfg.PublicHost,
	}
}

// Plan is everything rendered for one attempt before the remote session starts.
type Plan struct {
	AppName    string
	Image      string
	Dockerfile string
	Env        map[string]string
	Manifests  templates.ManifestSet
	Script     string
}

// PlanInput selects what to build.
type PlanInput struct {
	Project models.Project
	Branch  string
	Commit  string
	// Tag is the image tag, normally the deployment id.
	Tag string
}

// BuildPlan renders the Dockerfile, the manifest set and the remote script
// for a project. It reads nothing but its arguments.
func BuildPlan(in PlanInput, platform Platform) (*Plan, error) {
	p := in.Project
	appName := templates.AppName(p.Name)
	framework := p.Framework
	if framework == "" {
		framework = models.FrameworkOther
	}
	tag := in.Tag
	if tag == "" {
		tag = "latest"
	}

	infra := templates.InfraFlags{
		Postgres:      p.DBType == models.DBTypePostgreSQL,
		Redis:         p.UseRedis,
		Elasticsearch: p.UseElasticsearch,
	}
	env := templates.MergeEnv(templates.InfraEnv(appName, infra), p.EnvVariables)

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	dockerfile := templates.RenderDockerfile(templates.DockerfileInput{
		Framework:      framework,
		InstallCommand: p.InstallCommand,
		OutputDir:      p.OutputDir,
		EnvKeys:        keys,
	})
	buildArgs := make(map[string]string)
	for _, k := range templates.BuildArgKeys(keys) {
		buildArgs[k] = env[k]
	}

	repo := imageRepository(appName, framework)
	pushImage := imageRef(platform.RegistryHost, repo, tag)
	pullHost := platform.RegistryPullHost
	if pullHost == "" {
		pullHost = platform.RegistryHost
	}

	hostPort := 0
	if platform.ExposeNodePort {
		hostPort = p.Port
	}
	manifests, err := templates.RenderManifests(templates.ManifestInput{
		AppName:       appName,
		Image:         imageRef(pullHost, repo, tag),
		ContainerPort: templates.ContainerPort(framework),
		Domain:        p.Domain,
		BaseDomain:    platform.BaseDomain,
		Env:           env,
		HostPort:      hostPort,
		Infra:         infra,
		IngressClass:  platform.IngressClass,
		ClusterIssuer: platform.ClusterIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("render manifests: %w", err)
	}

	files := make([]remote.File, len(manifests))
	for i, m := range manifests {
		files[i] = remote.File{Name: m.FileName(), Content: m.Content}
	}
	branch := in.Branch
	if branch == "" {
		branch = p.DefaultBranch
	}
	projectFile := "package.json"
	if framework == models.FrameworkSpringBoot {
		projectFile = "pom.xml"
	}
	script, err := remote.BuildScript(remote.ScriptInput{
		AppName:       appName,
		RepositoryURL: p.RepositoryURL,
		Branch:        branch,
		Commit:        in.Commit,
		WorkDir:       platform.WorkDir,
		ProjectFile:   projectFile,
		Dockerfile:    dockerfile,
		Image:         pushImage,
		BuildArgs:     buildArgs,
		Manifests:     files,
		Namespace:     platform.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("compose script: %w", err)
	}

	return &Plan{
		AppName:    appName,
		Image:      pushImage,
		Dockerfile: dockerfile,
		Env:        env,
		Manifests:  manifests,
		Script:     script,
	}, nil
}

// PublicURL is where a READY deployment of p is reachable.
func PublicURL(p models.Project, platform Platform) string {
	if host := templates.IngressHost(templates.AppName(p.Name), p.Domain, platform.BaseDomain); host != "" {
		return "https://" + host
	}
	if platform.ExposeNodePort && platform.PublicHost != "" && p.Port > 0 {
		return fmt.Sprintf("http://%s:%d", platform.PublicHost, p.Port)
	}
	return ""
}

func imageRepository(appName, framework string) string {
	return appName + "-" + templates.AppName(framework)
}

func imageRef(registry, repo, tag string) string {
	registry = strings.TrimSuffix(registry, "/")
	if registry == "" {
		return repo + ":" + tag
	}
	return registry + "/" + repo + ":" + tag
}
