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
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	v1 "k8s.io/api/core/v1"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
)

var (
	// the systemd driver names the container cgroup as "<runtime>-<id>.scope",
	// the record keeps 63 characters so the suffix and the tail of the ID are usually truncated
	containerScopeRegex = regexp.MustCompile(`^(?:cri-containerd|containerd|docker|crio)-([0-9a-f]{12,64})(?:\.scope)?$`)
	// the cgroupfs driver names the container cgroup as the ID
	containerIDRegex = regexp.MustCompile(`^[0-9a-f]{12,64}$`)
	// "kubepods-burstable-pod<uid>.slice" of the systemd driver, or "pod<uid>" of the cgroupfs driver
	podUIDRegex = regexp.MustCompile(`pod([0-9a-f]{8}[-_][0-9a-f]{4}[-_][0-9a-f]{4}[-_][0-9a-f]{4}[-_][0-9a-f]{12})`)
)

const (
	resultMatched    = "matched"
	resultUnmatched  = "unmatched"
	resultUnresolved = "unresolved"
)

var correlatorLog = log.Sub("correlator")

var heartbeatCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "earthworm",
	Subsystem: "kubernetes",
	Name:      "heartbeats_total",
	Help:      "The count of heartbeats by the pod correlation result",
}, []string{"result"})

func init() {
	_ = prometheus.Register(heartbeatCounter)
}

// CgroupReference is the identity parsed from the cgroup name
type CgroupReference struct {
	ContainerID string
	PodUID      string
}

// ParseCgroupName reads the container ID or the pod UID from the name of the kernfs node
func ParseCgroupName(name string) (*CgroupReference, bool) {
	if name == "" || name == events.CgroupUnresolved || name == events.CgroupUnsupportedKernel {
		return nil, false
	}
	if groups := containerScopeRegex.FindStringSubmatch(name); len(groups) > 1 {
		return &CgroupReference{ContainerID: groups[1]}, true
	}
	if containerIDRegex.MatchString(name) {
		return &CgroupReference{ContainerID: name}, true
	}
	if groups := podUIDRegex.FindStringSubmatch(name); len(groups) > 1 {
		return &CgroupReference{PodUID: strings.ReplaceAll(groups[1], "_", "-")}, true
	}
	return nil, false
}

// Identity of the process in the cluster
type Identity struct {
	Namespace string
	Pod       string
	PodUID    string
	Node      string
	// Container is empty when the cgroup is the pod level
	Container string
	Service   string
	Owner     string
}

func (i *Identity) String() string {
	if i.Container == "" {
		return fmt.Sprintf("%s/%s", i.Namespace, i.Pod)
	}
	return fmt.Sprintf("%s/%s/%s", i.Namespace, i.Pod, i.Container)
}

// Lookup finds the kubernetes resources
type Lookup interface {
	FindContainer(idPrefix string) *PodContainer
	FindPod(uid string) *v1.Pod
	FindServiceName(namespace, podName string) string
}

// Correlator maps the heartbeats to the pods
type Correlator struct {
	lookup Lookup
	cache  *lru.Cache
}

func NewCorrelator(lookup Lookup, cacheSize int) (*Correlator, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Correlator{lookup: lookup, cache: cache}, nil
}

// Correlate the cgroup name to the pod, returns nil when no pod matched.
// Only the matched results are cached, the pod of a new container could be watched later.
func (c *Correlator) Correlate(cgroupName string) *Identity {
	if val, ok := c.cache.Get(cgroupName); ok {
		return val.(*Identity)
	}
	ref, ok := ParseCgroupName(cgroupName)
	if !ok {
		return nil
	}
	var identity *Identity
	if ref.ContainerID != "" {
		if container := c.lookup.FindContainer(ref.ContainerID); container != nil {
			identity = c.buildIdentity(container.Pod)
			identity.Container = container.ContainerSpec.Name
		}
	} else if pod := c.lookup.FindPod(ref.PodUID); pod != nil {
		identity = c.buildIdentity(pod)
	}
	if identity != nil {
		c.cache.Add(cgroupName, identity)
	}
	return identity
}

// Purge the cached results, called after the pods changed
func (c *Correlator) Purge() {
	c.cache.Purge()
}

func (c *Correlator) buildIdentity(pod *v1.Pod) *Identity {
	identity := &Identity{
		Namespace: pod.Namespace,
		Pod:       pod.Name,
		PodUID:    string(pod.UID),
		Node:      pod.Spec.NodeName,
		Service:   c.lookup.FindServiceName(pod.Namespace, pod.Name),
	}
	if owner := controllerOf(pod); owner != nil {
		identity.Owner = owner.Kind + "/" + owner.Name
	}
	return identity
}

// OnHeartbeat logs the heartbeat with the pod identity
func (c *Correlator) OnHeartbeat(rec *events.Record) {
	if !rec.IsCgroupResolved() {
		heartbeatCounter.WithLabelValues(resultUnresolved).Inc()
		return
	}
	cgroupName := rec.CgroupPathString()
	identity := c.Correlate(cgroupName)
	if identity == nil {
		heartbeatCounter.WithLabelValues(resultUnmatched).Inc()
		correlatorLog.Debugf("unmatched heartbeat: pid=%d, comm=%s, cgroup=%s at %v",
			rec.PID, rec.CommString(), cgroupName, rec.Time())
		return
	}
	heartbeatCounter.WithLabelValues(resultMatched).Inc()
	correlatorLog.Debugf("heartbeat for pod: %s (service: %s, node: %s), pid=%d, comm=%s at %v",
		identity, identity.Service, identity.Node, rec.PID, rec.CommString(), rec.Time())
}
