package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/mock"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware(t *testing.T) {
	ds := new(mock.DataStore)
	ds.CountClientsFunc = func(ctx context.Context) (int, error) {
		return 3, nil
	}
	ds.AppendClientRecordFunc = func(ctx context.Context, clientID string, rec fleet.ClientRecord) (time.Time, error) {
		return time.Time{}, &fleet.UnknownClientError{ClientID: clientID, InternalErr: errors.New("fk violation")}
	}

	var buf bytes.Buffer
	logger := level.NewFilter(log.NewLogfmtLogger(&buf), level.AllowInfo())
	svc := NewLoggingService(newTestService(t, ds), logger)
	ctx := context.Background()

	// successful calls are logged at debug level and filtered out
	n, err := svc.CountClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, buf.String())

	_, err = svc.WriteClientCrashInfo(ctx, &fleet.ClientCrash{ClientID: testClientID})
	require.Error(t, err)
	out := buf.String()
	assert.Contains(t, out, "method=WriteClientCrashInfo")
	assert.Contains(t, out, `internal="fk violation"`)
	assert.Contains(t, out, "level=info")
}

func TestLoggingMiddlewareIteration(t *testing.T) {
	ds := new(mock.DataStore)
	ds.ListClientIDsFunc = func(ctx context.Context, afterID string, limit int) ([]string, error) {
		if afterID == "" {
			return []string{testClientID, otherClientID}, nil
		}
		return nil, errors.New("lost connection")
	}

	var buf bytes.Buffer
	svc := NewLoggingService(newTestService(t, ds), log.NewLogfmtLogger(&buf))

	var ids []string
	var iterErr error
	for id, err := range svc.ListAllClientIDs(context.Background(), 2) {
		if err != nil {
			iterErr = err
			break
		}
		ids = append(ids, id)
	}
	require.Error(t, iterErr)
	assert.Equal(t, []string{testClientID, otherClientID}, ids)
	out := buf.String()
	assert.Contains(t, out, "method=ListAllClientIDs")
	assert.Contains(t, out, "count=2")
	assert.Contains(t, out, "lost connection")
}

func newTestMetrics(t *testing.T) (*prometheus.CounterVec, *prometheus.SummaryVec, fleet.Service, *mock.DataStore) {
	t.Helper()
	fieldKeys := []string{"method", "error"}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "api",
		Subsystem: "service",
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, fieldKeys)
	latency := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "api",
		Subsystem: "service",
		Name:      "request_latency_microseconds",
		Help:      "Total duration of requests in microseconds.",
	}, fieldKeys)
	ds := new(mock.DataStore)
	svc := NewMetricsService(
		newTestService(t, ds),
		kitprometheus.NewCounter(counter),
		kitprometheus.NewSummary(latency),
	)
	return counter, latency, svc, ds
}

func TestMetricsMiddleware(t *testing.T) {
	counter, latency, svc, ds := newTestMetrics(t)
	ds.CountClientsFunc = func(ctx context.Context) (int, error) {
		return 0, nil
	}
	ds.MultiReadClientLabelsFunc = func(ctx context.Context, clientIDs []string) (map[string][]fleet.ClientLabel, error) {
		return nil, errors.New("boom")
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CountClients(ctx)
		require.NoError(t, err)
	}
	_, err := svc.ReadClientLabels(ctx, testClientID)
	require.Error(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(counter.WithLabelValues("CountClients", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("ReadClientLabels", "true")))
	assert.Equal(t, 0.0, testutil.ToFloat64(counter.WithLabelValues("ReadClientLabels", "false")))
	assert.Equal(t, 2, testutil.CollectAndCount(latency))
}

func TestMetricsMiddlewareEarlyBreak(t *testing.T) {
	counter, _, svc, ds := newTestMetrics(t)
	ds.ListClientIDsFunc = func(ctx context.Context, afterID string, limit int) ([]string, error) {
		return []string{testClientID, otherClientID}, nil
	}

	for range svc.ListAllClientIDs(context.Background(), 10) {
		break
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("ListAllClientIDs", "false")))
}
