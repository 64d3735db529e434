package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	before := testutil.ToFloat64(admissions.WithLabelValues("DatesUnavailable"))
	IncAdmission("DatesUnavailable")
	IncAdmission("DatesUnavailable")
	assert.Equal(t, before+2, testutil.ToFloat64(admissions.WithLabelValues("DatesUnavailable")))

	IncHTTP("POST /api/v1/bookings", 201)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("POST /api/v1/bookings", "201")))

	IncTransition("pending", "confirmed")
	assert.Equal(t, 1.0, testutil.ToFloat64(transitions.WithLabelValues("pending", "confirmed")))

	assert.NotPanics(t, func() {
		IncGRPC("/stayfinder.booking.v1.AvailabilityService/CheckAvailability", "OK")
		IncSyncTask("completed")
	})
}
