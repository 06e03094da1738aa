// Package cluster is the typed, narrow wrapper over the cluster's
// control-plane API described in spec §4.3. It is grounded on the
// teacher's root k8sutils package (clientset.go, job.go, pod.go,
// configmap.go, rbac.go, node.go), generalized so Handlers submit
// structured specs rather than calling client-go directly, and hardened
// with a circuit breaker plus bounded exponential backoff so a cluster
// outage trips once instead of every TaskRun retrying independently.
package cluster

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
)

// Client is the Cluster Client of spec §4.3. Handlers never talk to
// client-go directly; they go through this type.
type Client struct {
	kube      *kubernetes.Clientset
	namespace string
	breaker   *gobreaker.CircuitBreaker
	backoffCeiling time.Duration
}

var (
	singleton *Client
	once      sync.Once
)

// NewClientset mirrors the teacher's NewClientSet: in-cluster config,
// falling back to the local kubeconfig when not running in-cluster.
func NewClientset() (*kubernetes.Clientset, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		configPath := os.Getenv(clientcmd.RecommendedConfigPathEnvVar)
		if configPath == "" {
			configPath = clientcmd.RecommendedHomeFile
		}
		config, err = clientcmd.BuildConfigFromFlags("", configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("building kubeconfig: %w", err)
	}
	return kubernetes.NewForConfig(config)
}

// Get returns the process-wide Client singleton, constructing it (and
// its circuit breaker) on first use, the way the teacher's
// GetClientset does for *Clientset.
func Get(namespace string, backoffCeiling time.Duration) (*Client, error) {
	var err error
	once.Do(func() {
		var kube *kubernetes.Clientset
		kube, err = NewClientset()
		if err != nil {
			err = fmt.Errorf("creating kubernetes client: %w", err)
			return
		}
		singleton = &Client{
			kube:      kube,
			namespace: namespace,
			backoffCeiling: backoffCeiling,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "cluster-client",
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > 5
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					klog.Warningf("cluster client circuit breaker %s: %s -> %s", name, from, to)
				},
			}),
		}
	})
	return singleton, err
}

func (c *Client) Namespace() string { return c.namespace }

func (c *Client) Raw() *kubernetes.Clientset { return c.kube }

func (c *Client) ServerVersion() (*version.Info, error) {
	return c.kube.Discovery().ServerVersion()
}

// call runs op through the circuit breaker. Transient failures (not
// context cancellation) are retried with exponential backoff up to
// backoffCeiling, per spec §5 Timeouts and §7 ObserveError.
func (c *Client) call(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		bo := backoff.WithContext(backoff.NewExponentialBackOff(
			backoff.WithMaxElapsedTime(c.backoffCeiling),
		), ctx)
		return nil, backoff.Retry(func() error {
			err := op(ctx)
			if err != nil && ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}, bo)
	})
	return err
}
