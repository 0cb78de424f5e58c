package main

import (
	"fmt"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/config"
	"github.com/fleetdm/clientstore/server/datastore/cached_mysql"
	"github.com/fleetdm/clientstore/server/datastore/inmem"
	"github.com/fleetdm/clientstore/server/datastore/mysql"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/service"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// closableDatastore is a fleet.Datastore that holds resources to release.
type closableDatastore interface {
	fleet.Datastore
	Name() string
	Close() error
}

func newDatastore(conf config.ClientStoreConfig, logger log.Logger) (closableDatastore, error) {
	switch conf.Datastore.Backend {
	case config.DatastoreBackendInmem:
		ds, err := inmem.New(clock.C)
		if err != nil {
			return nil, err
		}
		return ds, nil
	case config.DatastoreBackendMySQL:
		opts := []mysql.DBOption{mysql.Logger(log.With(logger, "component", "mysql"))}
		if conf.MysqlReadReplica.Address != "" {
			opts = append(opts, mysql.Replica(&conf.MysqlReadReplica))
		}
		return mysql.New(conf.Mysql, clock.C, opts...)
	}
	return nil, fmt.Errorf("unknown datastore backend %q", conf.Datastore.Backend)
}

// newService wires ds into the service and its logging and metrics
// middlewares. The metrics are registered with the default prometheus
// registry, so it must be called once per process.
func newService(conf config.ClientStoreConfig, ds fleet.Datastore, logger log.Logger) fleet.Service {
	if conf.Datastore.Backend == config.DatastoreBackendMySQL && conf.Datastore.CacheLabelsTTL > 0 {
		ds = cached_mysql.New(ds,
			cached_mysql.WithAllLabelsExpiration(conf.Datastore.CacheLabelsTTL),
			cached_mysql.WithMetadataExpiration(conf.Datastore.CacheMetadataTTL),
		)
	}

	var svc fleet.Service
	svc = service.NewService(ds, log.With(logger, "component", "service"), clock.C,
		service.WithIterationBatchSize(conf.Datastore.IterationBatchSize),
	)
	svc = service.NewLoggingService(svc, logger)

	fieldKeys := []string{"method", "error"}
	requestCount := kitprometheus.NewCounterFrom(prometheus.CounterOpts{
		Namespace: "clientstore",
		Subsystem: "service",
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, fieldKeys)
	requestLatency := kitprometheus.NewSummaryFrom(prometheus.SummaryOpts{
		Namespace: "clientstore",
		Subsystem: "service",
		Name:      "request_latency_seconds",
		Help:      "Total duration of requests in seconds.",
	}, fieldKeys)

	return service.NewMetricsService(svc, requestCount, requestLatency)
}

// openService loads the configuration and returns a ready service. The
// returned function releases the datastore.
func openService(configManager config.Manager) (fleet.Service, func()) {
	conf := configManager.LoadConfig()
	logger := initLogger(conf)

	ds, err := newDatastore(conf, logger)
	if err != nil {
		initFatal(err, "initializing datastore")
	}
	svc := newService(conf, ds, logger)
	return svc, func() {
		if err := ds.Close(); err != nil {
			log.With(logger, "component", ds.Name()).Log("msg", "closing datastore", "err", err)
		}
	}
}
