package config

type ObservabilityConfig interface {
	GetLogLevel() string
	GetMetricsAddr() string
}

type Observability struct {
	src *source
}

var _ ObservabilityConfig = Observability{}

func (o Observability) GetLogLevel() string {
	return o.src.str("OPPORTUCI_LOG_LEVEL", "info")
}

// GetMetricsAddr is the listen address for the Prometheus endpoint. Empty disables it.
func (o Observability) GetMetricsAddr() string {
	return o.src.str("OPPORTUCI_METRICS_ADDR", "")
}
