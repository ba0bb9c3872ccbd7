package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

const (
	MetricsNamespace = "op_allure"
)

// Entity kinds used as label values
const (
	EntityContainer = "container"
	EntityFixture   = "fixture"
	EntityTest      = "test"
	EntityStep      = "step"
)

// Lifecycle events used as label values
const (
	EventScheduled = "scheduled"
	EventStarted   = "started"
	EventStopped   = "stopped"
	EventWritten   = "written"
)

var (
	Debug                = false
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	lifecycleEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "lifecycle_events_total",
		Help:      "Count of lifecycle events by entity kind",
	}, []string{
		"entity",
		"event",
	})

	resultsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "results_written_total",
		Help:      "Count of results handed to the writer",
	}, []string{
		"entity",
		"status",
	})

	writeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "write_errors_total",
		Help:      "Count of failed writes",
	}, []string{
		"entity",
	})

	attachmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "attachments_total",
		Help:      "Count of attachments added",
	})

	attachmentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "attachment_bytes_total",
		Help:      "Total size of attachment content",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordLifecycleEvent(entity string, event string) {
	if Debug {
		log.Debug("metric inc",
			"m", "lifecycle_events_total",
			"entity", entity,
			"event", event)
	}
	lifecycleEventsTotal.WithLabelValues(entity, event).Inc()
}

// RecordWrite records the outcome of handing an entity to the writer
func RecordWrite(entity string, status types.Status, err error) {
	if err != nil {
		writeErrorsTotal.WithLabelValues(entity).Inc()
		RecordErrorDetails("write."+entity, err)
		return
	}
	RecordLifecycleEvent(entity, EventWritten)
	resultsWrittenTotal.WithLabelValues(entity, statusLabel(status)).Inc()
}

func RecordAttachment(size int) {
	attachmentsTotal.Inc()
	attachmentBytesTotal.Add(float64(size))
}

func statusLabel(status types.Status) string {
	if status == types.StatusNone {
		return "none"
	}
	return string(status)
}
