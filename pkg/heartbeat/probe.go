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

package heartbeat

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/channel"
)

// State of the probe
type State int

const (
	Unloaded State = iota
	Attached
	Running
	Detached
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Attached:
		return "attached"
	case Running:
		return "running"
	case Detached:
		return "detached"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Source produces the heartbeat records into the per-CPU channel
type Source interface {
	Name() string
	// CPUs is the count of the channel queues
	CPUs() (int, error)
	// Attach loads and links the capture hook, the records are written into the output after Start
	Attach(output *channel.PerCPU) error
	Start(ctx context.Context) error
	// Detach stops producing, must be safe to call after a failed Attach
	Detach() error
}

// Probe owns the lifecycle of the source and the channel between the source and the consumer
type Probe struct {
	source    Source
	queueSize int

	state   State
	channel *channel.PerCPU
	mutex   sync.Mutex
}

func NewProbe(source Source, queueSize int) *Probe {
	return &Probe{source: source, queueSize: queueSize, state: Unloaded}
}

func (p *Probe) State() State {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.state
}

// Channel is nil before the probe attached
func (p *Probe) Channel() *channel.PerCPU {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.channel
}

// Attach creates the channel and attaches the source: Unloaded -> Attached
func (p *Probe) Attach() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.state != Unloaded {
		return p.invalidTransition(Attached)
	}
	cpus, err := p.source.CPUs()
	if err != nil {
		return fmt.Errorf("query the cpu count failure: %v", err)
	}
	ch, err := channel.New(cpus, p.queueSize)
	if err != nil {
		return err
	}
	if err := p.source.Attach(ch); err != nil {
		var result error
		result = multierror.Append(result, fmt.Errorf("attach the %s source failure: %v", p.source.Name(), err))
		if e := p.source.Detach(); e != nil {
			result = multierror.Append(result, e)
		}
		return result
	}
	p.channel = ch
	p.state = Attached
	return nil
}

// Run starts producing records: Attached -> Running
func (p *Probe) Run(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.state != Attached {
		return p.invalidTransition(Running)
	}
	if err := p.source.Start(ctx); err != nil {
		return fmt.Errorf("start the %s source failure: %v", p.source.Name(), err)
	}
	p.state = Running
	return nil
}

// Detach stops the source and closes the channel: Attached|Running -> Detached.
// The pending records in the channel could still be drained.
func (p *Probe) Detach() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.state != Attached && p.state != Running {
		return p.invalidTransition(Detached)
	}
	err := p.source.Detach()
	p.channel.Close()
	p.state = Detached
	return err
}

func (p *Probe) invalidTransition(to State) error {
	return fmt.Errorf("invalid heartbeat probe transition: %s -> %s", p.state, to)
}
