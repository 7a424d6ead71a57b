// Package metrics holds the Prometheus collectors for change replication.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var RecordsEncoded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "multipart",
	Name:      "records_encoded_total",
	Help:      "Change records built and encoded on the authoritative side",
}, []string{"kind"})

var RecordsSent = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "multipart",
	Name:      "records_sent_total",
	Help:      "Change record frames queued to observers",
})

var RecordsDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "multipart",
	Name:      "records_decoded_total",
	Help:      "Change records decoded by replicas",
}, []string{"kind"})

var RecordsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "multipart",
	Name:      "records_applied_total",
	Help:      "Change records applied to a replica",
}, []string{"kind"})

var RecordsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "multipart",
	Name:      "records_dropped_total",
	Help:      "Change records rejected, labelled by error code",
}, []string{"code"})

var Observers = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "multipart",
	Name:      "observers",
	Help:      "Connected observer sessions",
})

var ObserversKicked = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "multipart",
	Name:      "observers_kicked_total",
	Help:      "Observer sessions dropped because their queue overflowed",
})

var JournalUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "multipart",
	Name:      "journal_uploads_total",
	Help:      "Closed journal files handed to the object store mirror, by result",
}, []string{"result"})

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		RecordsEncoded, RecordsSent, RecordsDecoded, RecordsApplied, RecordsDropped, Observers, ObserversKicked, JournalUploads,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
