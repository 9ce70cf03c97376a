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

package btf

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/perf"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
)

// SampleReader receives the raw sample with the CPU which produced it
type SampleReader func(cpu int, sample []byte)

// LostReader receives the count of samples dropped by the kernel when the CPU buffer is full
type LostReader func(cpu int, count uint64)

var lostSamplerCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "earthworm",
	Subsystem: "perf",
	Name:      "lost_samples_total",
	Help:      "The count of perf samples dropped by the kernel because the per-CPU buffer was full",
}, []string{"map"})

func init() {
	_ = prometheus.Register(lostSamplerCounter)
}

type Linker struct {
	closers   []io.Closer
	errors    error
	closeOnce sync.Once
	mutex     sync.Mutex
	readers   sync.WaitGroup
}

func NewLinker() *Linker {
	return &Linker{}
}

// AddTracePoint attach the program to the classic tracepoint
func (m *Linker) AddTracePoint(sys, name string, p *ebpf.Program) {
	l, e := link.Tracepoint(sys, name, p, nil)
	if e != nil {
		m.appendError(fmt.Errorf("open tracepoint %s/%s error: %v", sys, name, e))
		return
	}
	log.Debugf("attach to the tracepoint: %s/%s", sys, name)
	m.appendCloser(l)
}

// AddTracing attach the BTF enabled program(tp_btf, fentry, fexit), the attach point is declared by the program section
func (m *Linker) AddTracing(p *ebpf.Program) {
	l, e := link.AttachTracing(link.TracingOptions{Program: p})
	if e != nil {
		m.appendError(fmt.Errorf("attach tracing program %s error: %v", p.String(), e))
		return
	}
	log.Debugf("attach to the tracing program: %s", p.String())
	m.appendCloser(l)
}

// ReadEventAsync open the perf event array reader and read the samples until the linker closed
func (m *Linker) ReadEventAsync(emap *ebpf.Map, perCPUBuffer int, reader SampleReader, lost LostReader) {
	rd, err := perf.NewReader(emap, perCPUBuffer)
	if err != nil {
		m.appendError(fmt.Errorf("open perf event reader of %s error: %v", emap.String(), err))
		return
	}
	m.appendCloser(rd)

	m.readers.Add(1)
	go func() {
		defer m.readers.Done()
		for {
			record, err := rd.Read()
			if err != nil {
				if errors.Is(err, perf.ErrClosed) {
					return
				}
				log.Warnf("read from %s perf event array error: %v", emap.String(), err)
				continue
			}

			if record.LostSamples != 0 {
				lostSamplerCounter.WithLabelValues(emap.String()).Add(float64(record.LostSamples))
				if lost != nil {
					lost(record.CPU, record.LostSamples)
				}
				continue
			}

			reader(record.CPU, record.RawSample)
		}
	}()
}

func (m *Linker) appendCloser(c io.Closer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closers = append(m.closers, c)
}

func (m *Linker) appendError(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.errors = multierror.Append(m.errors, err)
}

func (m *Linker) HasError() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.errors
}

// Close detach all links and readers, the readers are closed first so no sample is delivered after Close returns
func (m *Linker) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mutex.Lock()
		closers := m.closers
		m.mutex.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			if e := closers[i].Close(); e != nil {
				err = multierror.Append(err, e)
			}
		}
		m.readers.Wait()
	})
	return err
}
