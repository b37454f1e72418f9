// Package prom keeps the process-wide Prometheus collectors of the ledger.
// Every helper is a no-op until Create has run, so libraries and tests can
// record metrics unconditionally.
package prom

import (
	"fmt"
	"sync"

	xhttp "github.com/nimasrn/card-ledger/pkg/http"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemLedger  = "ledger"
	SystemQr      = "qr"
	SystemSweeper = "sweeper"
)
const (
	MetricTransactions      = "transactions_total"
	MetricOperationDuration = "operation_duration_seconds"
	MetricBalanceRetries    = "balance_retries_total"
	MetricQrTokens          = "tokens_total"
	MetricSweepRuns         = "runs_total"
	MetricSweepExpired      = "expired_total"
)

const (
	TypeCounter      = "counter"
	TypeCounterVec   = "counterVec"
	TypeHistogramVec = "histogramVec"
)

// definition describes one collector registered by Create.
type definition struct {
	kind      string
	subsystem string
	name      string
	help      string
	labels    []string
}

var definitions = []definition{
	{TypeCounterVec, SystemLedger, MetricTransactions, "Committed ledger transactions by type and final status.", []string{"tx_type", "status"}},
	{TypeHistogramVec, SystemLedger, MetricOperationDuration, "Latency of money-moving operations.", []string{"operation", "outcome"}},
	{TypeCounter, SystemLedger, MetricBalanceRetries, "Balance updates retried after a version conflict.", nil},
	{TypeCounterVec, SystemQr, MetricQrTokens, "QR token lifecycle events.", []string{"event"}},
	{TypeCounterVec, SystemSweeper, MetricSweepRuns, "Expiry sweeper runs by outcome.", []string{"outcome"}},
	{TypeCounter, SystemSweeper, MetricSweepExpired, "QR tokens marked expired by the sweeper.", nil},
}

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounters = make(map[string]prometheus.Counter)
var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

// Create registers every ledger collector with the default registry and
// turns the helpers on. It returns the first registration error.
func Create(host string, env string, nameSpace string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()

	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace

	var err error
	for _, d := range definitions {
		if e := register(d); e != nil && err == nil {
			err = e
		}
	}
	MetricSystemEnabled = true
	return err
}

func register(d definition) error {
	key := d.subsystem + d.name
	switch d.kind {
	case TypeCounter:
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   d.subsystem,
			Name:        d.name,
			Help:        d.help,
			ConstLabels: defaultLabels,
		})
		MetricCollectionCounters[key] = c
		return prometheus.Register(c)
	case TypeCounterVec:
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   d.subsystem,
			Name:        d.name,
			Help:        d.help,
			ConstLabels: defaultLabels,
		}, d.labels)
		MetricCollectionCounterVec[key] = c
		return prometheus.Register(c)
	case TypeHistogramVec:
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   d.subsystem,
			Name:        d.name,
			Help:        d.help,
			ConstLabels: defaultLabels,
			Buckets:     []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, d.labels)
		MetricCollectionHistogramVec[key] = h
		return prometheus.Register(h)
	}
	return fmt.Errorf("metric type %s is not defined", d.kind)
}

// Handler exposes the default registry to a fasthttp router.
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}

// ListenAndServer serves metrics on their own port, for processes without
// an API server.
func ListenAndServer(port string, url string) {
	s := xhttp.CreateServer()
	s.GET(url, Handler())
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func addCounter(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func addCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func observeHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func AddTransaction(txType, status string) {
	addCounterVec(SystemLedger, MetricTransactions, 1, txType, status)
}

func ObserveOperation(operation, outcome string, seconds float64) {
	observeHistogramVec(SystemLedger, MetricOperationDuration, seconds, operation, outcome)
}

func IncBalanceRetry() {
	addCounter(SystemLedger, MetricBalanceRetries, 1)
}

func AddQrEvent(event string, n float64) {
	addCounterVec(SystemQr, MetricQrTokens, n, event)
}

func IncSweepRun(outcome string) {
	addCounterVec(SystemSweeper, MetricSweepRuns, 1, outcome)
}

func AddSweepExpired(n float64) {
	addCounter(SystemSweeper, MetricSweepExpired, n)
}
