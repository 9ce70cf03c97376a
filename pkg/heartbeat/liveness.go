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
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/zekroTJA/timedmap"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
)

// ProcessActivity is a process which heartbeats are received in the liveness TTL
type ProcessActivity struct {
	PID       uint32
	PPID      uint32
	Comm      string
	Cgroup    string
	FirstSeen time.Time

	heartbeats uint64
	lastSeen   atomic.Int64
}

func (p *ProcessActivity) Heartbeats() uint64 {
	return atomic.LoadUint64(&p.heartbeats)
}

func (p *ProcessActivity) LastSeen() time.Time {
	return time.Unix(0, p.lastSeen.Load())
}

// Liveness tracks the processes by the heartbeats,
// a process is released once no heartbeat is received in the TTL
type Liveness struct {
	ttl             time.Duration
	cleanupInterval time.Duration
	processes       cmap.ConcurrentMap
	alive           *timedmap.TimedMap
	cleaning        atomic.Bool
}

// NewLiveness builds the tracker, the expired processes are only released lazily until Start
func NewLiveness(ttl, cleanupInterval time.Duration) *Liveness {
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}
	return &Liveness{
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		processes:       cmap.New(),
		alive:           timedmap.New(0),
	}
}

// Start the cleaner which releases the expired processes periodically
func (l *Liveness) Start() {
	if l.cleaning.CompareAndSwap(false, true) {
		l.alive.StartCleanerInternal(l.cleanupInterval)
	}
}

func (l *Liveness) OnHeartbeat(rec *events.Record) {
	key := strconv.FormatUint(uint64(rec.PID), 10)
	l.keepAlive(key, l.track(key, rec))
}

func (l *Liveness) track(key string, rec *events.Record) *ProcessActivity {
	seen := rec.Time()
	activity := l.processes.Upsert(key, nil, func(exist bool, valueInMap, _ interface{}) interface{} {
		if exist {
			return valueInMap
		}
		return &ProcessActivity{
			PID:       rec.PID,
			PPID:      rec.PPID,
			Comm:      rec.CommString(),
			Cgroup:    rec.CgroupPathString(),
			FirstSeen: seen,
		}
	}).(*ProcessActivity)
	atomic.AddUint64(&activity.heartbeats, 1)
	activity.lastSeen.Store(seen.UnixNano())
	return activity
}

func (l *Liveness) keepAlive(key string, activity *ProcessActivity) {
	// setting again resets the expiration
	l.alive.Set(key, activity, l.ttl, func(expired interface{}) {
		l.processes.RemoveCb(key, func(_ string, v interface{}, exists bool) bool {
			return exists && v == expired
		})
	})
	// the previous expiration may have released the activity after it was tracked
	l.processes.SetIfAbsent(key, activity)
}

// IsAlive checks the heartbeat of the process is received in the TTL
func (l *Liveness) IsAlive(pid uint32) bool {
	return l.alive.GetValue(strconv.FormatUint(uint64(pid), 10)) != nil
}

// Processes returns the alive processes ordered by the PID
func (l *Liveness) Processes() []*ProcessActivity {
	result := make([]*ProcessActivity, 0, l.processes.Count())
	for key, val := range l.processes.Items() {
		if l.alive.GetValue(key) == nil {
			continue
		}
		result = append(result, val.(*ProcessActivity))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PID < result[j].PID
	})
	return result
}

func (l *Liveness) Stop() {
	if l.cleaning.CompareAndSwap(true, false) {
		l.alive.StopCleaner()
	}
}
