package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/raspberrysensor"
)

// metrics exposed by the producer
type metrics struct {
	temperature  *prometheus.GaugeVec
	pressure     *prometheus.GaugeVec
	humidity     *prometheus.GaugeVec
	readErrors   *prometheus.CounterVec
	readDuration *prometheus.HistogramVec
}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "raspberrysensor",
			Name:      name,
			Help:      help,
		},
		[]string{"channel"},
	)
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		temperature: newGauge("temperature_celsius", "Air temperature (units: degrees Celsius)"),
		pressure:    newGauge("pressure_pascal", "Atmospheric pressure (units: Pa)"),
		humidity:    newGauge("humidity_percent", "Humidity (units: % of relative humidity)"),
		readErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raspberrysensor",
				Name:      "read_errors_total",
				Help:      "Failed reads by channel and error kind",
			},
			[]string{"channel", "kind"},
		),
		readDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "raspberrysensor",
				Name:      "read_duration_seconds",
				Help:      "Time from trigger to completion, including bus queueing",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"channel"},
		),
	}
	reg.MustRegister(m.temperature, m.pressure, m.humidity, m.readErrors, m.readDuration)
	return m
}

func (m *metrics) observe(ch raspberrysensor.Channel, r *raspberrysensor.Reading) {
	label := string(ch)
	if r.Has(raspberrysensor.FieldTemperature) {
		m.temperature.WithLabelValues(label).Set(r.Temperature)
	}
	if r.Has(raspberrysensor.FieldPressure) {
		m.pressure.WithLabelValues(label).Set(r.Pressure)
	}
	if r.Has(raspberrysensor.FieldHumidity) {
		m.humidity.WithLabelValues(label).Set(r.Humidity)
	}
}

func (m *metrics) failed(ch raspberrysensor.Channel, err error) {
	m.readErrors.WithLabelValues(string(ch), raspberrysensor.KindOf(err).String()).Inc()
}

// newMetricsRegistry returns a registry carrying the process and build
// collectors next to the sensor metrics.
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}
