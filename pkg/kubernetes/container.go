// Licensed to Apache Software Foundation (ASF) under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Apache Software Foundation (ASF) licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package kubernetes

import (
	"strings"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var containerRuntimePrefixes = []string{"containerd://", "dockerd://", "docker://", "cri-o://"}

type PodContainer struct {
	// pod references
	Pod             *v1.Pod
	ContainerSpec   v1.Container
	ContainerStatus v1.ContainerStatus

	// the kubernetes resource registry
	registry *Registry
}

// AnalyzeContainers means query the running containers by pod, the init containers are included
func AnalyzeContainers(pod *v1.Pod, registry *Registry) []*PodContainer {
	containers := make([]*PodContainer, 0)
	analyze := func(specs []v1.Container, statuses []v1.ContainerStatus) {
		for _, cs := range statuses {
			for _, c := range specs {
				if c.Name != cs.Name {
					continue
				}
				containers = append(containers, &PodContainer{
					Pod:             pod,
					ContainerSpec:   c,
					ContainerStatus: cs,
					registry:        registry,
				})
			}
		}
	}
	analyze(pod.Spec.InitContainers, pod.Status.InitContainerStatuses)
	analyze(pod.Spec.Containers, pod.Status.ContainerStatuses)
	return containers
}

// CGroupID is the container ID without the runtime prefix, it's the identity in the cgroup name
func (c *PodContainer) CGroupID() string {
	cgroupID := c.ContainerStatus.ContainerID
	for _, prefix := range containerRuntimePrefixes {
		cgroupID = strings.TrimPrefix(cgroupID, prefix)
	}
	return cgroupID
}

func (c *PodContainer) ServiceName() string {
	if c.registry == nil {
		return ""
	}
	return c.registry.FindServiceName(c.Pod.Namespace, c.Pod.Name)
}

// Owner is the controller of the pod, such as the ReplicaSet or the DaemonSet
func (c *PodContainer) Owner() *metav1.OwnerReference {
	return controllerOf(c.Pod)
}

func controllerOf(pod *v1.Pod) *metav1.OwnerReference {
	for i := range pod.OwnerReferences {
		if o := pod.OwnerReferences[i]; o.Controller != nil && *o.Controller {
			return &o
		}
	}
	return nil
}
