package services

import (
	"context"

	"github.com/deploykit/lib/kubernetes"
	"github.com/deploykit/models"
	"github.com/deploykit/templates"
)

// ResourceReader reads live cluster state for an app
type ResourceReader interface {
	GetAppResources(ctx context.Context, namespace, appName string) (*kubernetes.AppResources, error)
}

// ResourceService reports what is actually running for a project
type ResourceService struct {
	reader    ResourceReader
	namespace string
}

// NewResourceService creates a resource service. reader may be nil.
func NewResourceService(reader ResourceReader, namespace string) *ResourceService {
	return &ResourceService{reader: reader, namespace: namespace}
}

// ForProject returns the Deployment, Service, Ingress, dependencies and pod
// usage of the project's app.
func (s *ResourceService) ForProject(ctx context.Context, project models.Project) (*kubernetes.AppResources, error) {
	if s.reader == nil {
		return nil, ErrClusterUnavailable
	}
	return s.reader.GetAppResources(ctx, s.namespace, templates.AppName(project.Name))
}
