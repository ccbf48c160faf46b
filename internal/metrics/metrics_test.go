package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/predict", "200"))
	RecordAPIRequest("POST", "/api/predict", 200, 3*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/predict", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordTraining(t *testing.T) {
	okBefore := testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("error"))

	RecordTraining(time.Second, 0.93, nil)
	assert.Equal(t, 0.93, testutil.ToFloat64(ModelAccuracy))

	RecordTraining(time.Second, 0.10, errors.New("boom"))
	assert.Equal(t, 0.93, testutil.ToFloat64(ModelAccuracy), "failed run must not move the gauge")

	assert.Equal(t, okBefore+1, testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("error")))
}
