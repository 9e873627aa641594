package kubernetes

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

const defaultProxyURL = "http://localhost:8001"

// Client represents a kubernetes client
type Client struct {
	Clientset     kubernetes.Interface
	MetricsClient metricsclient.Interface
	log           *logrus.Entry
}

// NewClient connects through a kubectl proxy at proxyURL.
func NewClient(proxyURL string, log *logrus.Entry) (*Client, error) {
	config := GetConfigWithHost(proxyURL)

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	var metrics metricsclient.Interface
	if m, err := metricsclient.NewForConfig(config); err != nil {
		log.WithError(err).Warn("Unable to create metrics client")
	} else {
		metrics = m
	}

	return &Client{Clientset: clientset, MetricsClient: metrics, log: log}, nil
}

// NewClientFromInterfaces wraps existing clientsets; metrics may be nil.
func NewClientFromInterfaces(clientset kubernetes.Interface, metrics metricsclient.Interface, log *logrus.Entry) *Client {
	return &Client{Clientset: clientset, MetricsClient: metrics, log: log}
}

// GetConfigWithHost returns a Kubernetes config using the specified kubectl proxy host
func GetConfigWithHost(host string) *rest.Config {
	if host == "" {
		host = defaultProxyURL
	}
	return &rest.Config{
		Host: host,
		// No authentication needed when using kubectl proxy
		TLSClientConfig: rest.TLSClientConfig{
			Insecure: true,
		},
	}
}
