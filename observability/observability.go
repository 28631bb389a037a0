// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package observability

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func Make(log *logrus.Logger) *Observability {
	return &Observability{
		log:      log,
		metrics:  prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

type Observability struct {
	log      *logrus.Logger
	metrics  *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

func (o *Observability) Log() *logrus.Logger {
	return o.log
}

func (o *Observability) Metrics() *prometheus.Registry {
	return o.metrics
}

func (o *Observability) Counter(opts prometheus.CounterOpts) prometheus.Counter {
	c, ok := o.counters[opts.Name]
	if ok {
		return c
	}
	c = prometheus.NewCounter(opts)
	err := o.metrics.Register(c)
	if err != nil {
		o.log.WithField("metric_collector", opts.Name).
			Errorf("failed to register metric")
		return c
	}
	o.counters[opts.Name] = c
	return c
}

func (o *Observability) Gauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g, ok := o.gauges[opts.Name]
	if ok {
		return g
	}
	g = prometheus.NewGauge(opts)
	err := o.metrics.Register(g)
	if err != nil {
		o.log.WithField("metric_collector", opts.Name).
			Errorf("failed to register metric")
		return g
	}
	o.gauges[opts.Name] = g
	return g
}

// MakeReplayMetrics builds a counter per ReplayMetrics field, named
// reconciler_<field>_<action>_total.
func MakeReplayMetrics(obs *Observability, action string) *ReplayMetrics {
	counters := &ReplayMetrics{}
	v := reflect.ValueOf(counters).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := strings.ToLower(t.Field(i).Name)
		name := fmt.Sprintf("reconciler_%s_%s_total", field, action)
		help := fmt.Sprintf("Number of %s %s during reconciliation.", field, action)
		collector := obs.Counter(prometheus.CounterOpts{
			Name: name,
			Help: help,
		})
		v.Field(i).Set(reflect.ValueOf(collector))
	}
	return counters
}

type ReplayMetrics struct {
	Events    prometheus.Counter
	Donations prometheus.Counter
	Admins    prometheus.Counter
	Entities  prometheus.Counter
}
