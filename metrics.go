package fedtls

//
// Metrics definitions
//

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricContextsBuilt counts the contexts built, by kind.
	metricContextsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedtls_contexts_built_total",
		Help: "Total number of TLS contexts built",
	}, []string{"kind"})

	// metricCurveSelectionFailures counts builds that continued without an ECDH curve.
	metricCurveSelectionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedtls_curve_selection_failures_total",
		Help: "Total number of TLS contexts built without the configured ECDH curve",
	})

	// metricSessionsCreated counts outbound sessions handed to the network layer.
	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedtls_client_sessions_created_total",
		Help: "Total number of outbound TLS sessions created",
	})

	// metricSNISent counts handshake start callbacks that set the server name.
	metricSNISent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedtls_sni_sent_total",
		Help: "Total number of outbound handshakes started with a server name",
	})

	// metricCallbackErrors counts errors and panics swallowed by info callbacks.
	metricCallbackErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedtls_callback_errors_total",
		Help: "Total number of errors caught inside TLS info callbacks",
	})

	// metricHostnameEncodingErrors counts hostnames rejected by IDNA encoding.
	metricHostnameEncodingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedtls_hostname_encoding_errors_total",
		Help: "Total number of outbound hostnames that could not be IDNA encoded",
	})
)
