/******************************************************************************
 *
 *  Description :
 *
 *    Process statistics: expvar counters behind an asynchronous updater
 *    plus a Prometheus collector exposing broker and session gauges.
 *
 *****************************************************************************/

package main

import (
	"expvar"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mercury-im/mercury/server/logs"
)

type varUpdate struct {
	// Name of the variable to update.
	varname string
	// Value to publish.
	count int64
	// Treat the count as an increment rather than the new value.
	inc bool
}

// statsInit initializes the stats endpoint and the updater goroutine.
func statsInit(mux *http.ServeMux, path string) {
	if path == "" || path == "-" {
		return
	}

	mux.Handle(path, expvar.Handler())
	globals.statsUpdate = make(chan *varUpdate, 1024)

	start := time.Now()
	expvar.Publish("Uptime", expvar.Func(func() any {
		return time.Since(start).Seconds()
	}))
	expvar.Publish("LiveSessionCount", expvar.Func(func() any {
		if globals.sessionStore == nil {
			return 0
		}
		return globals.sessionStore.Count()
	}))

	go statsUpdater()

	logs.Info.Printf("stats: variables exposed at '%s'", path)
}

// statsRegisterInt registers a new int variable. Must be called before
// any updates are sent for it.
func statsRegisterInt(name string) {
	expvar.Publish(name, new(expvar.Int))
}

// statsInc asynchronously increments the variable by val.
func statsInc(name string, val int) {
	if globals.statsUpdate == nil {
		return
	}
	select {
	case globals.statsUpdate <- &varUpdate{varname: name, count: int64(val), inc: true}:
	default:
	}
}

// statsSet asynchronously assigns a new value to the variable.
func statsSet(name string, val int64) {
	if globals.statsUpdate == nil {
		return
	}
	select {
	case globals.statsUpdate <- &varUpdate{varname: name, count: val}:
	default:
	}
}

// statsShutdown terminates the updater goroutine.
func statsShutdown() {
	if globals.statsUpdate != nil {
		close(globals.statsUpdate)
		globals.statsUpdate = nil
	}
}

// The go routine which actually publishes stats updates.
func statsUpdater() {
	for upd := range globals.statsUpdate {
		entry := expvar.Get(upd.varname)
		intvar, ok := entry.(*expvar.Int)
		if !ok {
			logs.Err.Panicln("stats: unknown or mistyped variable", upd.varname)
		}
		if upd.inc {
			intvar.Add(upd.count)
		} else {
			intvar.Set(upd.count)
		}
	}
	logs.Info.Println("stats: shutdown")
}

// brokerCollector exposes broker delivery counters and the live session
// count to Prometheus.
type brokerCollector struct {
	published *prometheus.Desc
	delivered *prometheus.Desc
	dropped   *prometheus.Desc
	topics    *prometheus.Desc
	sessions  *prometheus.Desc
}

func newBrokerCollector() *brokerCollector {
	return &brokerCollector{
		published: prometheus.NewDesc("mercury_events_published_total",
			"Number of domain events accepted by the broker.", nil, nil),
		delivered: prometheus.NewDesc("mercury_events_delivered_total",
			"Number of events handed to subscription buffers.", nil, nil),
		dropped: prometheus.NewDesc("mercury_events_dropped_total",
			"Number of events dropped for slow subscribers.", nil, nil),
		topics: prometheus.NewDesc("mercury_topics",
			"Number of registered topics.", nil, nil),
		sessions: prometheus.NewDesc("mercury_sessions",
			"Number of live sessions.", nil, nil),
	}
}

func (c *brokerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.delivered
	ch <- c.dropped
	ch <- c.topics
	ch <- c.sessions
}

func (c *brokerCollector) Collect(ch chan<- prometheus.Metric) {
	st := globals.broker.Stats()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(st.Published))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(st.Delivered))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(st.Dropped))
	ch <- prometheus.MustNewConstMetric(c.topics, prometheus.GaugeValue, float64(globals.broker.TopicCount()))
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(globals.sessionStore.Count()))
}

// promInit mounts the Prometheus scrape endpoint.
func promInit(mux *http.ServeMux, path string) {
	if path == "" || path == "-" {
		return
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(newBrokerCollector())
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	logs.Info.Printf("stats: prometheus metrics exposed at '%s'", path)
}
