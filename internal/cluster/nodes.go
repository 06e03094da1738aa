package cluster

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NodeResources is the subset of a Node's status the Cluster Client
// exposes (spec §4.3 "list nodes and their allocatable resources"),
// grounded on the teacher's node.go (GetNodes / GetNodeIpToNameMapping).
type NodeResources struct {
	Name        string
	Allocatable corev1.ResourceList
	InternalIP  string
}

// ListNodes returns every cluster node's name, internal IP and
// allocatable resources.
func (c *Client) ListNodes(ctx context.Context) ([]NodeResources, error) {
	var list *corev1.NodeList
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		list, err = c.kube.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]NodeResources, 0, len(list.Items))
	for _, n := range list.Items {
		nr := NodeResources{Name: n.Name, Allocatable: n.Status.Allocatable}
		for _, addr := range n.Status.Addresses {
			if addr.Type == corev1.NodeInternalIP {
				nr.InternalIP = addr.Address
				break
			}
		}
		out = append(out, nr)
	}
	return out, nil
}
