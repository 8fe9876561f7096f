package metrics

// Config carries the service identity attached to every metric.
type Config struct {
	ServiceName string
	Environment string
}
