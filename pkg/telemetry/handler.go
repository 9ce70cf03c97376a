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

package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/earthworm-io/earthworm/pkg/heartbeat"
)

const (
	MetricsPath  = "/metrics"
	ProcessPath  = "/heartbeat/processes"
	pprofPattern = "/debug/pprof/"
)

type aliveProcess struct {
	PID        uint32    `json:"pid"`
	PPID       uint32    `json:"ppid"`
	Comm       string    `json:"comm"`
	Cgroup     string    `json:"cgroup"`
	Heartbeats uint64    `json:"heartbeats"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// heartbeatCollectors exposes the counters of the consumer as the gauges
func heartbeatCollectors(op heartbeat.Operator) []prometheus.Collector {
	gauge := func(name, help string, value func(*heartbeat.Stats) uint64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "earthworm",
			Subsystem: "heartbeat",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(value(op.Stats()))
		})
	}
	return []prometheus.Collector{
		gauge("consumed", "The count of heartbeats delivered to the listeners", func(s *heartbeat.Stats) uint64 {
			return s.Consumed
		}),
		gauge("dropped", "The count of heartbeats dropped by the full per CPU queue", func(s *heartbeat.Stats) uint64 {
			var total uint64
			for _, c := range s.CPUs {
				total += c.Dropped
			}
			return total
		}),
		gauge("lost", "The count of heartbeats lost by the kernel perf buffer", func(s *heartbeat.Stats) uint64 {
			var total uint64
			for _, c := range s.CPUs {
				total += c.Lost
			}
			return total
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "earthworm",
			Subsystem: "heartbeat",
			Name:      "alive_processes",
			Help:      "The count of processes which heartbeats are received in the liveness TTL",
		}, func() float64 {
			return float64(len(op.AliveProcesses()))
		}),
	}
}

func newHandler(registry *prometheus.Registry, op heartbeat.Operator, enablePprof bool) http.Handler {
	mux := http.NewServeMux()
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, registry}
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	mux.HandleFunc(ProcessPath, func(w http.ResponseWriter, _ *http.Request) {
		writeProcesses(w, op.AliveProcesses())
	})

	if enablePprof {
		mux.HandleFunc(pprofPattern, pprof.Index)
		mux.HandleFunc(pprofPattern+"cmdline", pprof.Cmdline)
		mux.HandleFunc(pprofPattern+"profile", pprof.Profile)
		mux.HandleFunc(pprofPattern+"symbol", pprof.Symbol)
		mux.HandleFunc(pprofPattern+"trace", pprof.Trace)
	}
	return mux
}

func writeProcesses(w http.ResponseWriter, processes []*heartbeat.ProcessActivity) {
	result := make([]aliveProcess, 0, len(processes))
	for _, p := range processes {
		result = append(result, aliveProcess{
			PID:        p.PID,
			PPID:       p.PPID,
			Comm:       p.Comm,
			Cgroup:     p.Cgroup,
			Heartbeats: p.Heartbeats(),
			FirstSeen:  p.FirstSeen,
			LastSeen:   p.LastSeen(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Warnf("write the alive processes failure: %v", err)
	}
}
