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
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/channel"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
)

// drain the channel periodically even without notification, the notify signal could be coalesced
const drainPeriod = time.Millisecond * 200

// Listener receives every heartbeat, it's called in the consumer goroutine so it must not block
type Listener interface {
	OnHeartbeat(rec *events.Record)
}

type ListenerFunc func(rec *events.Record)

func (f ListenerFunc) OnHeartbeat(rec *events.Record) {
	f(rec)
}

// Stats of the consumer
type Stats struct {
	Consumed uint64
	CPUs     []channel.Stats
}

// Consumer drains the per-CPU channel in one goroutine and fans out to the listeners
type Consumer struct {
	channel *channel.PerCPU

	listeners []Listener
	mutex     sync.RWMutex
	consumed  atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer() *Consumer {
	return &Consumer{}
}

func (c *Consumer) AddListener(l Listener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start consuming the channel, it should be called once the probe attached
func (c *Consumer) Start(ctx context.Context, ch *channel.PerCPU) {
	c.channel = ch
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(drainPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.channel.Notify():
			case <-ticker.C:
			}
			c.Consume()
		}
	}()
}

// Consume drains all pending records, returns the count of consumed records
func (c *Consumer) Consume() int {
	if c.channel == nil {
		return 0
	}
	c.mutex.RLock()
	listeners := c.listeners
	c.mutex.RUnlock()

	debug := log.Enable(logrus.DebugLevel)
	count := c.channel.DrainAll(func(cpu int, rec *events.Record) {
		if debug {
			log.Debugf("receive heartbeat from cpu %d: %s", cpu, rec)
		}
		for _, l := range listeners {
			l.OnHeartbeat(rec)
		}
	})
	c.consumed.Add(uint64(count))
	return count
}

// Stop the consumer goroutine and deliver the remaining records
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.Consume()
}

func (c *Consumer) Stats() *Stats {
	stats := &Stats{Consumed: c.consumed.Load()}
	if c.channel != nil {
		stats.CPUs = c.channel.Stats()
	}
	return stats
}
