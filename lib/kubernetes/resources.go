package kubernetes

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Dependencies are the stateful services that may run next to an app.
var Dependencies = []string{"postgres", "redis", "elasticsearch"}

// WorkloadStatus summarises a Deployment.
type WorkloadStatus struct {
	Name            string `json:"name"`
	Image           string `json:"image"`
	Replicas        int32  `json:"replicas"`
	ReadyReplicas   int32  `json:"readyReplicas"`
	UpdatedReplicas int32  `json:"updatedReplicas"`
	Available       bool   `json:"available"`
}

// ServiceStatus summarises a Service.
type ServiceStatus struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ClusterIP string `json:"clusterIP"`
	Port      int32  `json:"port"`
	NodePort  int32  `json:"nodePort,omitempty"`
}

// IngressStatus summarises an Ingress.
type IngressStatus struct {
	Name      string   `json:"name"`
	Hosts     []string `json:"hosts"`
	TLS       bool     `json:"tls"`
	Addresses []string `json:"addresses,omitempty"`
}

// PodUsage is the live resource consumption of one pod.
type PodUsage struct {
	Pod         string `json:"pod"`
	CPUMilli    int64  `json:"cpuMilli"`
	MemoryBytes int64  `json:"memoryBytes"`
}

// AppResources is what is currently running in the cluster for one app.
type AppResources struct {
	AppName      string           `json:"appName"`
	Namespace    string           `json:"namespace"`
	Deployment   *WorkloadStatus  `json:"deployment,omitempty"`
	Service      *ServiceStatus   `json:"service,omitempty"`
	Ingress      *IngressStatus   `json:"ingress,omitempty"`
	Dependencies []WorkloadStatus `json:"dependencies"`
	Pods         []PodUsage       `json:"pods,omitempty"`
}

// GetAppResources reads the live state of appName's resources. Missing
// objects are left nil; pod usage is omitted when metrics-server is absent.
func (c *Client) GetAppResources(ctx context.Context, namespace, appName string) (*AppResources, error) {
	out := &AppResources{AppName: appName, Namespace: namespace, Dependencies: []WorkloadStatus{}}

	dep, err := c.workload(ctx, namespace, appName)
	if err != nil {
		return nil, err
	}
	out.Deployment = dep

	for _, d := range Dependencies {
		w, err := c.workload(ctx, namespace, appName+"-"+d)
		if err != nil {
			return nil, err
		}
		if w != nil {
			out.Dependencies = append(out.Dependencies, *w)
		}
	}

	svc, err := c.Clientset.CoreV1().Services(namespace).Get(ctx, appName, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("get service: %w", err)
	default:
		out.Service = serviceStatus(svc)
	}

	ing, err := c.Clientset.NetworkingV1().Ingresses(namespace).Get(ctx, appName+"-ingress", metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("get ingress: %w", err)
	default:
		status := &IngressStatus{Name: ing.Name, TLS: len(ing.Spec.TLS) > 0, Hosts: []string{}}
		for _, rule := range ing.Spec.Rules {
			if rule.Host != "" {
				status.Hosts = append(status.Hosts, rule.Host)
			}
		}
		for _, lb := range ing.Status.LoadBalancer.Ingress {
			if lb.IP != "" {
				status.Addresses = append(status.Addresses, lb.IP)
			} else if lb.Hostname != "" {
				status.Addresses = append(status.Addresses, lb.Hostname)
			}
		}
		out.Ingress = status
	}

	out.Pods = c.podUsage(ctx, namespace, appName)
	return out, nil
}

func (c *Client) workload(ctx context.Context, namespace, name string) (*WorkloadStatus, error) {
	d, err := c.Clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment %s: %w", name, err)
	}
	return workloadStatus(d), nil
}

func workloadStatus(d *appsv1.Deployment) *WorkloadStatus {
	w := &WorkloadStatus{
		Name:            d.Name,
		ReadyReplicas:   d.Status.ReadyReplicas,
		UpdatedReplicas: d.Status.UpdatedReplicas,
	}
	if d.Spec.Replicas != nil {
		w.Replicas = *d.Spec.Replicas
	}
	if len(d.Spec.Template.Spec.Containers) > 0 {
		w.Image = d.Spec.Template.Spec.Containers[0].Image
	}
	for _, cond := range d.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable && cond.Status == corev1.ConditionTrue {
			w.Available = true
		}
	}
	return w
}

func serviceStatus(svc *corev1.Service) *ServiceStatus {
	s := &ServiceStatus{Name: svc.Name, Type: string(svc.Spec.Type), ClusterIP: svc.Spec.ClusterIP}
	if len(svc.Spec.Ports) > 0 {
		s.Port = svc.Spec.Ports[0].Port
		s.NodePort = svc.Spec.Ports[0].NodePort
	}
	return s
}

func (c *Client) podUsage(ctx context.Context, namespace, appName string) []PodUsage {
	if c.MetricsClient == nil {
		return nil
	}
	list, err := c.MetricsClient.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + appName,
	})
	if err != nil {
		c.log.WithError(err).Debug("pod metrics unavailable")
		return nil
	}

	var usage []PodUsage
	for _, pm := range list.Items {
		u := PodUsage{Pod: pm.Name}
		for _, container := range pm.Containers {
			u.CPUMilli += container.Usage.Cpu().MilliValue()
			u.MemoryBytes += container.Usage.Memory().Value()
		}
		usage = append(usage, u)
	}
	return usage
}

// DeleteAppResources removes everything deploykit renders for appName.
// Objects that are already gone are ignored.
func (c *Client) DeleteAppResources(ctx context.Context, namespace, appName string) error {
	policy := metav1.DeletePropagationForeground
	opts := metav1.DeleteOptions{PropagationPolicy: &policy}
	log := c.log.WithFields(logrus.Fields{"namespace": namespace, "app": appName})

	ignoreMissing := func(kind, name string, err error) error {
		if err == nil {
			log.Infof("%s %s deleted", kind, name)
			return nil
		}
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete %s %s: %w", kind, name, err)
	}

	core := c.Clientset.CoreV1()
	apps := c.Clientset.AppsV1()

	ingress := appName + "-ingress"
	if err := ignoreMissing("ingress", ingress, c.Clientset.NetworkingV1().Ingresses(namespace).Delete(ctx, ingress, opts)); err != nil {
		return err
	}
	if err := ignoreMissing("service", appName, core.Services(namespace).Delete(ctx, appName, opts)); err != nil {
		return err
	}
	if err := ignoreMissing("deployment", appName, apps.Deployments(namespace).Delete(ctx, appName, opts)); err != nil {
		return err
	}
	cm := appName + "-config"
	if err := ignoreMissing("configmap", cm, core.ConfigMaps(namespace).Delete(ctx, cm, opts)); err != nil {
		return err
	}
	for _, d := range Dependencies {
		name := appName + "-" + d
		if err := ignoreMissing("service", name, core.Services(namespace).Delete(ctx, name, opts)); err != nil {
			return err
		}
		if err := ignoreMissing("deployment", name, apps.Deployments(namespace).Delete(ctx, name, opts)); err != nil {
			return err
		}
	}
	pvc := appName + "-postgres-pvc"
	return ignoreMissing("persistentvolumeclaim", pvc, core.PersistentVolumeClaims(namespace).Delete(ctx, pvc, opts))
}
