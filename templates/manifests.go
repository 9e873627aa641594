package templates

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/deploykit/utils"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Manifest names, listed in the order they must be applied.
const (
	ManifestPostgres      = "postgres"
	ManifestRedis         = "redis"
	ManifestElasticsearch = "elasticsearch"
	ManifestConfigMap     = "configmap"
	ManifestDeployment    = "deployment"
	ManifestService       = "service"
	ManifestIngress       = "ingress"
)

var applyOrder = []string{
	ManifestPostgres,
	ManifestRedis,
	ManifestElasticsearch,
	ManifestConfigMap,
	ManifestDeployment,
	ManifestService,
	ManifestIngress,
}

const (
	defaultIngressClass  = "nginx"
	defaultClusterIssuer = "letsencrypt-production"
	servicePort          = 80

	postgresImage      = "postgres:15-alpine"
	redisImage         = "redis:7-alpine"
	elasticsearchImage = "docker.elastic.co/elasticsearch/elasticsearch:7.17.10"
	postgresStorage    = "1Gi"
)

var resourceName = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ManifestInput is everything RenderManifests depends on.
type ManifestInput struct {
	AppName       string
	Image         string
	ContainerPort int
	Domain        string
	// BaseDomain gives apps without a domain the host <app>.<BaseDomain>.
	BaseDomain    string
	Env           map[string]string
	// HostPort > 0 exposes the app through a NodePort Service.
	HostPort      int
	Infra         InfraFlags
	IngressClass  string
	ClusterIssuer string
}

// Manifest is one rendered YAML file. Content may hold several documents.
type Manifest struct {
	Name    string
	Content string
}

// FileName is the name the manifest is written under on the remote host.
func (m Manifest) FileName() string {
	return m.Name + ".yaml"
}

// ManifestSet holds the manifests of one attempt in apply order.
type ManifestSet []Manifest

// Get returns the manifest called name.
func (s ManifestSet) Get(name string) (Manifest, bool) {
	for _, m := range s {
		if m.Name == name {
			return m, true
		}
	}
	return Manifest{}, false
}

// Names lists the manifests in apply order.
func (s ManifestSet) Names() []string {
	names := make([]string, len(s))
	for i, m := range s {
		names[i] = m.Name
	}
	return names
}

// RenderManifests renders the Kubernetes documents for one app.
func RenderManifests(in ManifestInput) (ManifestSet, error) {
	if !resourceName.MatchString(in.AppName) {
		return nil, fmt.Errorf("invalid app name %q", in.AppName)
	}
	if in.Image == "" {
		return nil, errors.New("image is required")
	}
	if in.ContainerPort <= 0 {
		return nil, fmt.Errorf("invalid container port %d", in.ContainerPort)
	}

	objects := map[string][]interface{}{
		ManifestDeployment: {appDeployment(in)},
		ManifestService:    {appService(in)},
	}
	// A rule without a host matches every request on the controller.
	if host := IngressHost(in.AppName, in.Domain, in.BaseDomain); host != "" {
		objects[ManifestIngress] = []interface{}{appIngress(in, host)}
	}
	if len(in.Env) > 0 {
		objects[ManifestConfigMap] = []interface{}{configMap(in)}
	}
	if in.Infra.Postgres {
		objects[ManifestPostgres] = postgresObjects(in.AppName)
	}
	if in.Infra.Redis {
		objects[ManifestRedis] = dependencyObjects(in.AppName, ManifestRedis, redisImage, redisPort, nil)
	}
	if in.Infra.Elasticsearch {
		objects[ManifestElasticsearch] = dependencyObjects(in.AppName, ManifestElasticsearch, elasticsearchImage, elasticsearchPort, []corev1.EnvVar{
			{Name: "discovery.type", Value: "single-node"},
			{Name: "ES_JAVA_OPTS", Value: "-Xms512m -Xmx512m"},
		})
	}

	var set ManifestSet
	for _, name := range applyOrder {
		objs, ok := objects[name]
		if !ok {
			continue
		}
		content, err := utils.MarshalManifests(objs...)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		set = append(set, Manifest{Name: name, Content: content})
	}
	return set, nil
}

// IngressHost is the host an app is routed under: its own domain, else a
// subdomain of base. Empty means the app gets no Ingress.
func IngressHost(appName, domain, base string) string {
	if domain != "" {
		return domain
	}
	base = strings.Trim(base, ".")
	if base == "" {
		return ""
	}
	return appName + "." + base
}

func configMapName(appName string) string {
	return appName + "-config"
}

func labels(name string) map[string]string {
	return map[string]string{"app": name}
}

func configMap(in ManifestInput) *corev1.ConfigMap {
	data := make(map[string]string, len(in.Env))
	for k, v := range in.Env {
		data[k] = v
	}
	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   configMapName(in.AppName),
			Labels: labels(in.AppName),
		},
		Data: data,
	}
}

func appDeployment(in ManifestInput) *appsv1.Deployment {
	container := corev1.Container{
		Name:            in.AppName,
		Image:           in.Image,
		ImagePullPolicy: corev1.PullAlways,
		Ports: []corev1.ContainerPort{
			{ContainerPort: int32(in.ContainerPort)},
		},
	}
	if len(in.Env) > 0 {
		container.EnvFrom = []corev1.EnvFromSource{{
			ConfigMapRef: &corev1.ConfigMapEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: configMapName(in.AppName)},
			},
		}}
	}
	return deployment(in.AppName, container, nil)
}

func deployment(name string, container corev1.Container, volumes []corev1.Volume) *appsv1.Deployment {
	d := &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels(name),
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: utils.Int32Ptr(1),
			Selector: &metav1.LabelSelector{MatchLabels: labels(name)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels(name)},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
					Volumes:    volumes,
				},
			},
		},
	}
	if len(volumes) > 0 {
		d.Spec.Strategy = appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType}
	}
	return d
}

func appService(in ManifestInput) *corev1.Service {
	port := corev1.ServicePort{
		Name:       "http",
		Port:       servicePort,
		TargetPort: intstr.FromInt32(int32(in.ContainerPort)),
	}
	serviceType := corev1.ServiceTypeClusterIP
	if in.HostPort > 0 {
		serviceType = corev1.ServiceTypeNodePort
		port.NodePort = int32(in.HostPort)
	}
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   in.AppName,
			Labels: labels(in.AppName),
		},
		Spec: corev1.ServiceSpec{
			Type:     serviceType,
			Selector: labels(in.AppName),
			Ports:    []corev1.ServicePort{port},
		},
	}
}

func appIngress(in ManifestInput, host string) *networkingv1.Ingress {
	class := in.IngressClass
	if class == "" {
		class = defaultIngressClass
	}
	issuer := in.ClusterIssuer
	if issuer == "" {
		issuer = defaultClusterIssuer
	}
	pathType := networkingv1.PathTypePrefix

	return &networkingv1.Ingress{
		TypeMeta: metav1.TypeMeta{APIVersion: "networking.k8s.io/v1", Kind: "Ingress"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        in.AppName + "-ingress",
			Labels:      labels(in.AppName),
			Annotations: map[string]string{"cert-manager.io/cluster-issuer": issuer},
		},
		Spec: networkingv1.IngressSpec{
			IngressClassName: utils.StringPtr(class),
			Rules: []networkingv1.IngressRule{{
				Host: host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: in.AppName,
									Port: networkingv1.ServiceBackendPort{Number: servicePort},
								},
							},
						}},
					},
				},
			}},
			TLS: []networkingv1.IngressTLS{{
				Hosts:      []string{host},
				SecretName: in.AppName + "-tls",
			}},
		},
	}
}

func dependencyObjects(appName, dependency, image string, port int, env []corev1.EnvVar) []interface{} {
	name := ServiceHost(appName, dependency)
	container := corev1.Container{
		Name:  dependency,
		Image: image,
		Ports: []corev1.ContainerPort{{ContainerPort: int32(port)}},
		Env:   env,
	}
	return []interface{}{
		deployment(name, container, nil),
		dependencyService(name, port),
	}
}

func dependencyService(name string, port int) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels(name),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: labels(name),
			Ports: []corev1.ServicePort{{
				Port:       int32(port),
				TargetPort: intstr.FromInt32(int32(port)),
			}},
		},
	}
}

func postgresObjects(appName string) []interface{} {
	name := ServiceHost(appName, ManifestPostgres)
	claim := name + "-pvc"

	pvc := &corev1.PersistentVolumeClaim{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   claim,
			Labels: labels(name),
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(postgresStorage),
				},
			},
		},
	}

	container := corev1.Container{
		Name:  ManifestPostgres,
		Image: postgresImage,
		Ports: []corev1.ContainerPort{{ContainerPort: postgresPort}},
		Env: []corev1.EnvVar{
			{Name: "POSTGRES_DB", Value: DatabaseName(appName)},
			{Name: "POSTGRES_USER", Value: postgresUser},
			{Name: "POSTGRES_PASSWORD", Value: postgresPassword},
			{Name: "PGDATA", Value: "/var/lib/postgresql/data/pgdata"},
		},
		VolumeMounts: []corev1.VolumeMount{{
			Name:      "data",
			MountPath: "/var/lib/postgresql/data",
		}},
	}
	volumes := []corev1.Volume{{
		Name: "data",
		VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: claim},
		},
	}}

	return []interface{}{
		pvc,
		deployment(name, container, volumes),
		dependencyService(name, postgresPort),
	}
}
