package cluster

import (
	"context"

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	applycorev1 "k8s.io/client-go/applyconfigurations/core/v1"
	applyrbacv1 "k8s.io/client-go/applyconfigurations/rbac/v1"
)

// SchedulerRule is the least-privilege policy rule the core itself
// needs: it only ever creates/reads/deletes pods, jobs, configmaps and
// events and lists nodes (spec §4.3), never the cluster-root rule the
// teacher's own manager bootstrapped for itself (kbatch/alpha/v2/
// manager.go K8sManagerRules). Grounded on the teacher's rbac.go
// Apply*/PolicyRule shape, narrowed to this process's actual surface.
var SchedulerRule = rbacv1.PolicyRule{
	Verbs:     []string{"get", "list", "watch", "create", "delete"},
	APIGroups: []string{"", "batch"},
	Resources: []string{"pods", "pods/log", "jobs", "configmaps", "events", "nodes"},
}

// BootstrapRBAC applies the ServiceAccount/ClusterRole/ClusterRoleBinding
// triple the core runs under, grounded on the teacher's
// ApplyServiceAccount/ApplyClusterRole/ApplyClusterRoleBinding
// (rbac.go), server-side-applied so repeated calls converge rather than
// conflict.
func (c *Client) BootstrapRBAC(ctx context.Context, name string, labels map[string]string) error {
	if err := c.applyServiceAccount(ctx, name, labels); err != nil {
		return err
	}
	if err := c.applyClusterRole(ctx, name, SchedulerRule, labels); err != nil {
		return err
	}
	return c.applyClusterRoleBinding(ctx, name, name, name, labels)
}

func (c *Client) applyServiceAccount(ctx context.Context, name string, labels map[string]string) error {
	sa := applycorev1.ServiceAccount(name, c.namespace).WithLabels(labels)
	_, err := c.kube.CoreV1().ServiceAccounts(c.namespace).Apply(ctx, sa, metav1.ApplyOptions{FieldManager: name, Force: true})
	return err
}

func (c *Client) applyClusterRole(ctx context.Context, name string, rule rbacv1.PolicyRule, labels map[string]string) error {
	r := applyrbacv1.PolicyRule().
		WithVerbs(rule.Verbs...).
		WithAPIGroups(rule.APIGroups...).
		WithResources(rule.Resources...)

	cr := applyrbacv1.ClusterRole(name).WithRules(r).WithLabels(labels)
	_, err := c.kube.RbacV1().ClusterRoles().Apply(ctx, cr, metav1.ApplyOptions{FieldManager: name, Force: true})
	return err
}

func (c *Client) applyClusterRoleBinding(ctx context.Context, name, clusterRoleName, serviceAccountName string, labels map[string]string) error {
	crb := applyrbacv1.ClusterRoleBinding(name).
		WithSubjects(applyrbacv1.Subject().
			WithKind("ServiceAccount").
			WithName(serviceAccountName).
			WithNamespace(c.namespace)).
		WithLabels(labels).
		WithRoleRef(applyrbacv1.RoleRef().
			WithKind("ClusterRole").
			WithName(clusterRoleName).
			WithAPIGroup("rbac.authorization.k8s.io"))

	_, err := c.kube.RbacV1().ClusterRoleBindings().Apply(ctx, crb, metav1.ApplyOptions{FieldManager: name, Force: true})
	return err
}
