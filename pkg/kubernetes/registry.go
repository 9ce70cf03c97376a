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
	"sort"
	"strings"
	"sync"
	"time"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

const rsyncPeriod = 5 * time.Minute

// Registry watches the pods of the node and the services, and indexes the containers by the cgroup identity
type Registry struct {
	factories        []informers.SharedInformerFactory
	podInformers     []cache.SharedIndexInformer
	serviceInformers []cache.SharedIndexInformer

	mutex               sync.RWMutex
	containers          map[string]*PodContainer
	containerIDs        []string
	pods                map[string]*v1.Pod
	podServiceNameCache map[string]string

	onChange func()
}

func NewRegistry(cli kubernetes.Interface, namespaces []string, nodeName string) *Registry {
	r := &Registry{
		containers:          make(map[string]*PodContainer),
		pods:                make(map[string]*v1.Pod),
		podServiceNameCache: make(map[string]string),
	}
	for _, ns := range namespaces {
		podFactory := informers.NewSharedInformerFactoryWithOptions(cli, rsyncPeriod,
			informers.WithNamespace(ns),
			informers.WithTweakListOptions(func(options *metav1.ListOptions) {
				options.FieldSelector = fields.OneTermEqualSelector("spec.nodeName", nodeName).String()
			}))
		podInformer := podFactory.Core().V1().Pods().Informer()
		podInformer.AddEventHandler(r)
		r.podInformers = append(r.podInformers, podInformer)

		serviceFactory := informers.NewSharedInformerFactoryWithOptions(cli, rsyncPeriod, informers.WithNamespace(ns))
		serviceInformer := serviceFactory.Core().V1().Services().Informer()
		serviceInformer.AddEventHandler(r)
		r.serviceInformers = append(r.serviceInformers, serviceInformer)

		r.factories = append(r.factories, podFactory, serviceFactory)
	}
	return r
}

// OnChange is called after the index rebuilt
func (r *Registry) OnChange(f func()) {
	r.onChange = f
}

func (r *Registry) Start(stopChan <-chan struct{}) {
	for _, f := range r.factories {
		f.Start(stopChan)
	}
}

// WaitForCacheSync returns false when the stop channel closed before all informers synced
func (r *Registry) WaitForCacheSync(stopChan <-chan struct{}) bool {
	synced := make([]cache.InformerSynced, 0)
	for i := range r.podInformers {
		synced = append(synced, r.podInformers[i].HasSynced, r.serviceInformers[i].HasSynced)
	}
	return cache.WaitForCacheSync(stopChan, synced...)
}

// FindContainer by the container ID, the cgroup name could be truncated so the prefix is accepted
func (r *Registry) FindContainer(idPrefix string) *PodContainer {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if c := r.containers[idPrefix]; c != nil {
		return c
	}
	inx := sort.SearchStrings(r.containerIDs, idPrefix)
	if inx < len(r.containerIDs) && strings.HasPrefix(r.containerIDs[inx], idPrefix) {
		return r.containers[r.containerIDs[inx]]
	}
	return nil
}

// FindPod by the UID
func (r *Registry) FindPod(uid string) *v1.Pod {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.pods[uid]
}

func (r *Registry) FindServiceName(namespace, podName string) string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.podServiceNameCache[namespace+"_"+podName]
}

func (r *Registry) recompose() {
	pods := make([]*v1.Pod, 0)
	services := make([]*v1.Service, 0)
	for i := range r.podInformers {
		for _, p := range r.podInformers[i].GetStore().List() {
			pods = append(pods, p.(*v1.Pod))
		}
		for _, s := range r.serviceInformers[i].GetStore().List() {
			services = append(services, s.(*v1.Service))
		}
	}
	r.rebuild(pods, services)
}

func (r *Registry) rebuild(pods []*v1.Pod, services []*v1.Service) {
	containers := make(map[string]*PodContainer)
	podIndex := make(map[string]*v1.Pod)
	for _, pod := range pods {
		podIndex[string(pod.UID)] = pod
		for _, c := range AnalyzeContainers(pod, r) {
			if id := c.CGroupID(); id != "" {
				containers[id] = c
			}
		}
	}
	ids := make([]string, 0, len(containers))
	for id := range containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	serviceNames := make(map[string]string)
	for _, pod := range pods {
		for _, service := range services {
			if pod.Namespace != service.Namespace {
				continue
			}
			if len(service.Spec.Selector) == 0 {
				continue
			}
			if labels.Set(service.Spec.Selector).AsSelector().Matches(labels.Set(pod.ObjectMeta.Labels)) {
				// if multiple service selector matches the same pod
				// then must choose one by same logical
				key := pod.Namespace + "_" + pod.Name
				if existing := serviceNames[key]; existing != "" {
					serviceNames[key] = chooseServiceName(existing, service.Name)
				} else {
					serviceNames[key] = service.Name
				}
			}
		}
	}

	r.mutex.Lock()
	r.containers, r.containerIDs, r.pods, r.podServiceNameCache = containers, ids, podIndex, serviceNames
	r.mutex.Unlock()
	if r.onChange != nil {
		r.onChange()
	}
}

func chooseServiceName(a, b string) string {
	// short name
	if len(a) < len(b) {
		return a
	} else if len(a) > len(b) {
		return b
	}
	// ascii compare
	if a < b {
		return a
	}
	return b
}

func (r *Registry) OnAdd(_ interface{}) {
	r.recompose()
}

func (r *Registry) OnUpdate(_, _ interface{}) {
	r.recompose()
}

func (r *Registry) OnDelete(_ interface{}) {
	r.recompose()
}
