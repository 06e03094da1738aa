package builders

import (
	"errors"
	"fmt"
	"regexp"

	corev1 "k8s.io/api/core/v1"
)

// NodeAffinity is one required-node-selector term, adapted from the
// teacher's affinity.go bizNodeAffinity model.
type NodeAffinity struct {
	Key      string
	Operator NodeAffinityOperator
	Values   []string
}

type NodeAffinityOperator string

const (
	NodeAffinityOpIn           NodeAffinityOperator = "In"
	NodeAffinityOpNotIn        NodeAffinityOperator = "NotIn"
	NodeAffinityOpExists       NodeAffinityOperator = "Exists"
	NodeAffinityOpDoesNotExist NodeAffinityOperator = "DoesNotExist"
	NodeAffinityOpGt           NodeAffinityOperator = "Gt"
	NodeAffinityOpLt           NodeAffinityOperator = "Lt"
)

var labelKeyPattern = regexp.MustCompile(`([A-Za-z0-9][-A-Za-z0-9_.]*)?[A-Za-z0-9]`)

func (n *NodeAffinity) Validate() error {
	if len(n.Key) == 0 || len(n.Key) > 63 {
		return errors.New("invalid key, length must be between 1 and 63")
	}
	if !labelKeyPattern.MatchString(n.Key) {
		return fmt.Errorf("key %q does not match label pattern", n.Key)
	}
	switch n.Operator {
	case NodeAffinityOpIn, NodeAffinityOpNotIn, NodeAffinityOpExists, NodeAffinityOpDoesNotExist, NodeAffinityOpGt, NodeAffinityOpLt:
	default:
		return fmt.Errorf("invalid operator: %s", n.Operator)
	}
	return nil
}

type NodeAffinities []*NodeAffinity

func (n NodeAffinities) Validate() error {
	for _, a := range n {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// gpuCapacityKey is the node label a cluster's GPU device plugin
// advertises; a task that asks for GPUs must land on a node carrying
// it, since num_gpus alone only sets a resource request/limit and says
// nothing about scheduling eligibility.
const gpuCapacityKey = "odinscheduler.io/gpu-capable"

// RequiredAffinity builds a corev1.Affinity requiring the GPU-capacity
// label whenever num_gpus > 0, in the style of the teacher's
// newAffinity (single required term, match-all semantics). Returns nil
// for a task that doesn't request GPUs — PodSpec leaves Affinity unset
// in that case rather than submitting a NodeAffinity with zero terms.
func RequiredAffinity(numGPUs *int) *corev1.Affinity {
	if numGPUs == nil || *numGPUs <= 0 {
		return nil
	}
	affinities := NodeAffinities{{Key: gpuCapacityKey, Operator: NodeAffinityOpExists}}
	affinity, err := newAffinity(affinities, true)
	if err != nil {
		// Only reachable if the hardcoded term above is malformed.
		return nil
	}
	return affinity
}

func newAffinity(bizNodeAffinities NodeAffinities, matchAll bool) (*corev1.Affinity, error) {
	if len(bizNodeAffinities) == 0 {
		return nil, fmt.Errorf("node affinities is empty")
	}
	if err := bizNodeAffinities.Validate(); err != nil {
		return nil, err
	}

	var terms []corev1.NodeSelectorTerm
	if matchAll {
		requirements := make([]corev1.NodeSelectorRequirement, len(bizNodeAffinities))
		for i, entry := range bizNodeAffinities {
			requirements[i] = corev1.NodeSelectorRequirement{
				Key:      entry.Key,
				Operator: corev1.NodeSelectorOperator(entry.Operator),
				Values:   entry.Values,
			}
		}
		terms = []corev1.NodeSelectorTerm{{MatchExpressions: requirements}}
	} else {
		terms = make([]corev1.NodeSelectorTerm, len(bizNodeAffinities))
		for i, entry := range bizNodeAffinities {
			terms[i] = corev1.NodeSelectorTerm{
				MatchExpressions: []corev1.NodeSelectorRequirement{{
					Key:      entry.Key,
					Operator: corev1.NodeSelectorOperator(entry.Operator),
					Values:   entry.Values,
				}},
			}
		}
	}

	return &corev1.Affinity{
		NodeAffinity: &corev1.NodeAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: &corev1.NodeSelector{
				NodeSelectorTerms: terms,
			},
		},
	}, nil
}
