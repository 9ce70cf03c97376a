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

// Package channel is the per-CPU output channel between the capture hook and the consumer.
// Every CPU owns an independent bounded queue with a single producer, a full queue drops the record.
package channel

import (
	"fmt"
	"sync/atomic"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
)

// Outcome of the submission
type Outcome int

const (
	Delivered Outcome = iota
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Stats of one CPU queue
type Stats struct {
	CPU       int
	Delivered uint64
	Dropped   uint64
	// Lost is reported by the transport, such as the perf buffer overwritten in the kernel
	Lost    uint64
	Pending int
}

type queue struct {
	buf  []events.Record
	mask uint64

	// head is only written by the consumer, tail is only written by the producer
	head atomic.Uint64
	tail atomic.Uint64

	delivered atomic.Uint64
	dropped   atomic.Uint64
	lost      atomic.Uint64
}

// PerCPU is the set of the per-CPU queues, initialized at attach time and closed at detach time
type PerCPU struct {
	queues []*queue
	notify chan struct{}
	closed atomic.Bool
}

// New creates the channel with one queue for each CPU, the capacity is rounded up to the power of two
func New(cpus, capacity int) (*PerCPU, error) {
	if cpus <= 0 {
		return nil, fmt.Errorf("the cpu count must be positive: %d", cpus)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("the queue capacity must be positive: %d", capacity)
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	c := &PerCPU{
		queues: make([]*queue, cpus),
		notify: make(chan struct{}, 1),
	}
	for i := range c.queues {
		c.queues[i] = &queue{buf: make([]events.Record, size), mask: uint64(size - 1)}
	}
	return c, nil
}

func (c *PerCPU) CPUs() int {
	return len(c.queues)
}

// Capacity of each CPU queue
func (c *PerCPU) Capacity() int {
	return len(c.queues[0].buf)
}

// Submit copies the record into the queue of the CPU, never blocks
func (c *PerCPU) Submit(cpu uint32, rec *events.Record) Outcome {
	if int(cpu) >= len(c.queues) {
		return Dropped
	}
	q := c.queues[cpu]
	if c.closed.Load() {
		q.dropped.Add(1)
		return Dropped
	}
	tail := q.tail.Load()
	if tail-q.head.Load() >= uint64(len(q.buf)) {
		q.dropped.Add(1)
		return Dropped
	}
	q.buf[tail&q.mask] = *rec
	q.tail.Store(tail + 1)
	q.delivered.Add(1)

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return Delivered
}

// Lost records the count of records lost before reaching the channel
func (c *PerCPU) Lost(cpu uint32, count uint64) {
	if int(cpu) >= len(c.queues) || count == 0 {
		return
	}
	c.queues[cpu].lost.Add(count)
}

// Notify receives a signal after any record is submitted
func (c *PerCPU) Notify() <-chan struct{} {
	return c.notify
}

// Drain pops all pending records of the CPU in the submit order, must be called by a single consumer
func (c *PerCPU) Drain(cpu int, f func(rec *events.Record)) int {
	if cpu < 0 || cpu >= len(c.queues) {
		return 0
	}
	q := c.queues[cpu]
	head, tail := q.head.Load(), q.tail.Load()
	count := 0
	for ; head < tail; head++ {
		rec := q.buf[head&q.mask]
		q.head.Store(head + 1)
		f(&rec)
		count++
	}
	return count
}

// DrainAll drains every CPU queue one by one
func (c *PerCPU) DrainAll(f func(cpu int, rec *events.Record)) int {
	count := 0
	for cpu := range c.queues {
		cpu := cpu
		count += c.Drain(cpu, func(rec *events.Record) {
			f(cpu, rec)
		})
	}
	return count
}

// Close rejects the following submissions, the pending records still could be drained
func (c *PerCPU) Close() {
	c.closed.Store(true)
}

func (c *PerCPU) IsClosed() bool {
	return c.closed.Load()
}

func (c *PerCPU) Stats() []Stats {
	result := make([]Stats, 0, len(c.queues))
	for cpu, q := range c.queues {
		result = append(result, Stats{
			CPU:       cpu,
			Delivered: q.delivered.Load(),
			Dropped:   q.dropped.Load(),
			Lost:      q.lost.Load(),
			Pending:   int(q.tail.Load() - q.head.Load()),
		})
	}
	return result
}
