package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------------
// Metric registration sanity checks — verify every exported metric is properly
// registered and carries the expected fully-qualified name.
//
// We check registration via Describe() rather than DefaultGatherer.Gather()
// because Gather() only returns series that have been observed at least once;
// *Vec metrics with no label combinations yet used are silently absent from
// Gather output even though they are correctly registered.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"graph_refresh_duration_seconds", GraphRefreshDuration},
		{"graph_refresh_skipped_total", GraphRefreshSkippedTotal},
		{"graph_refresh_errors_total", GraphRefreshErrorsTotal},
		{"expired_membership_edges_total", ExpiredEdgesTotal},
		{"notification_emails_sent_total", NotificationEmailsSentTotal},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			found := false
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					found = true
				}
			}
			if !found {
				t.Errorf("metric %q not described with expected name", tc.name)
			}
		})
	}
}

func TestNotificationEmailsSentTotal_Labels(t *testing.T) {
	// Incrementing with a label must not panic and must be observable.
	NotificationEmailsSentTotal.WithLabelValues("membership_request").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "notification_emails_sent_total" {
			return
		}
	}
	t.Error("notification_emails_sent_total not present in gathered metrics")
}
