package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func gatherNames(reg *prometheus.Registry) map[string]float64 {
	out := map[string]float64{}
	families, err := reg.Gather()
	So(err, ShouldBeNil)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[f.GetName()] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[f.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then metrics use the default namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.sessionOpen.Set(1)
				names := gatherNames(registry)
				So(names["geoasistencia_attendance_session_open"], ShouldEqual, 1)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names and constant labels follow the options", func() {
				manager.fixesReceived.WithLabelValues("accepted").Inc()
				manager.fixesReceived.WithLabelValues("stale").Inc()
				manager.eventLatency.Observe(0.3)

				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() != "test_unit_fixes_received_total" {
						continue
					}
					found = true
					for _, metric := range f.GetMetric() {
						var env string
						for _, l := range metric.GetLabel() {
							if l.GetName() == "env" {
								env = l.GetValue()
							}
						}
						So(env, ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
				So(gatherNames(registry)["test_unit_event_processing_latency_milliseconds"], ShouldEqual, 1)
			})
		})

		Convey("When empty option values are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithPrometheusRegistry(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "geoasistencia")
				So(manager.subsystem, ShouldEqual, "attendance")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.customLabels, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording location metrics", func() {
			So(func() {
				RecordFix("accepted")
				RecordFix("stale")
				RecordSignalLost("timeout")
				UpdateLocation(true, true, 12.5)
				UpdateLocation(false, false, -1)
			}, ShouldNotPanic)
		})

		Convey("When recording session metrics", func() {
			So(func() {
				UpdateSessionOpen(true)
				RecordEdge("signal_lost")
				RecordAutoClose("triggered")
				RecordMarkSubmitted("SALIDA", true)
				RecordMarkSubmitted("ENTRADA", false)
				RecordMarkResult("SALIDA", "accepted")
				RecordMarkRejected("busy")
				RecordHistoryRefresh("ok")
				RecordSubmissionLatency(120)
				RecordEventProcessingLatency(0.2)
				RecordGatewayRequest("submit_mark", "ok", 85)
			}, ShouldNotPanic)

			Convey("Then they should be exported on the custom registry", func() {
				names := gatherNames(GetRegistry())
				So(names["geoasistencia_attendance_session_open"], ShouldEqual, 1)
				So(names["geoasistencia_attendance_auto_close_total"], ShouldBeGreaterThanOrEqualTo, 1)
				So(names["geoasistencia_attendance_marks_submitted_total"], ShouldBeGreaterThanOrEqualTo, 2)
			})
		})

		Convey("When recording queue, HTTP and system metrics", func() {
			So(func() {
				UpdateQueueCapacity(64)
				UpdateQueueSize(3)
				UpdateQueueUtilization(3.0 / 64.0)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("queue_full")
				RecordHTTPRequest("/session", "GET", "200")
				RecordHTTPRequestDuration("/session", "GET", "200", 1.5)
				RecordErrorByComponent("gateway", "transport")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func() {
					for j := 0; j < 100; j++ {
						RecordFix("accepted")
						UpdateQueueSize(j)
						RecordEventProcessingLatency(float64(j))
						RecordHTTPRequest("/fixes", "POST", "202")
					}
					done <- true
				}()
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(true, ShouldBeTrue)
			})
		})
	})
}
