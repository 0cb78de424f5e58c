package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/go-kit/kit/metrics"
)

type metricsMiddleware struct {
	fleet.Service
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
}

// NewMetricsService service takes an existing service and wraps it
// with instrumentation middleware.
func NewMetricsService(
	svc fleet.Service,
	requestCount metrics.Counter,
	requestLatency metrics.Histogram,
) fleet.Service {
	return metricsMiddleware{
		Service:        svc,
		requestCount:   requestCount,
		requestLatency: requestLatency,
	}
}

// instrumentIteration counts one request per full or partial range over seq.
func instrumentIteration[V any](mw metricsMiddleware, method string, seq iter.Seq2[V, error]) iter.Seq2[V, error] {
	return func(yield func(V, error) bool) {
		var err error
		defer func(begin time.Time) {
			lvs := []string{"method", method, "error", fmt.Sprint(err != nil)}
			mw.requestCount.With(lvs...).Add(1)
			mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
		}(time.Now())
		for v, verr := range seq {
			if verr != nil {
				err = verr
			}
			if !yield(v, verr) {
				return
			}
		}
	}
}

func (mw metricsMiddleware) ListAllClientIDs(ctx context.Context, batchSize int) iter.Seq2[string, error] {
	return instrumentIteration(mw, "ListAllClientIDs", mw.Service.ListAllClientIDs(ctx, batchSize))
}

func (mw metricsMiddleware) IterateAllClientsFullInfo(ctx context.Context, batchSize int) iter.Seq2[*fleet.ClientFullInfo, error] {
	return instrumentIteration(mw, "IterateAllClientsFullInfo", mw.Service.IterateAllClientsFullInfo(ctx, batchSize))
}

func (mw metricsMiddleware) IterateAllClientSnapshots(ctx context.Context, batchSize int) iter.Seq2[*fleet.ClientSnapshot, error] {
	return instrumentIteration(mw, "IterateAllClientSnapshots", mw.Service.IterateAllClientSnapshots(ctx, batchSize))
}

func (mw metricsMiddleware) WriteClientMetadata(ctx context.Context, clientID string, update fleet.ClientMetadataUpdate) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "WriteClientMetadata", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	err = mw.Service.WriteClientMetadata(ctx, clientID, update)
	return err
}

func (mw metricsMiddleware) ReadClientMetadata(ctx context.Context, clientID string) (md *fleet.ClientMetadata, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientMetadata", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	md, err = mw.Service.ReadClientMetadata(ctx, clientID)
	return md, err
}

func (mw metricsMiddleware) MultiReadClientMetadata(ctx context.Context, clientIDs []string) (mds map[string]*fleet.ClientMetadata, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "MultiReadClientMetadata", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	mds, err = mw.Service.MultiReadClientMetadata(ctx, clientIDs)
	return mds, err
}

func (mw metricsMiddleware) CountClients(ctx context.Context) (n int, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "CountClients", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	n, err = mw.Service.CountClients(ctx)
	return n, err
}

func (mw metricsMiddleware) AppendClientRecord(ctx context.Context, clientID string, rec fleet.ClientRecord, at *time.Time) (ts time.Time, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "AppendClientRecord", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	ts, err = mw.Service.AppendClientRecord(ctx, clientID, rec, at)
	return ts, err
}

func (mw metricsMiddleware) AppendClientRecords(ctx context.Context, kind fleet.RecordKind, recs []fleet.ClientRecord) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "AppendClientRecords", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	err = mw.Service.AppendClientRecords(ctx, kind, recs)
	return err
}

func (mw metricsMiddleware) ReadLatestClientRecord(ctx context.Context, clientID string, kind fleet.RecordKind) (rec fleet.ClientRecord, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadLatestClientRecord", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	rec, err = mw.Service.ReadLatestClientRecord(ctx, clientID, kind)
	return rec, err
}

func (mw metricsMiddleware) MultiReadLatestClientRecords(ctx context.Context, clientIDs []string, kind fleet.RecordKind) (recs map[string]fleet.ClientRecord, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "MultiReadLatestClientRecords", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	recs, err = mw.Service.MultiReadLatestClientRecords(ctx, clientIDs, kind)
	return recs, err
}

func (mw metricsMiddleware) ReadClientRecordHistory(ctx context.Context, clientID string, kind fleet.RecordKind, tr fleet.TimeRange) (recs []fleet.ClientRecord, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientRecordHistory", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	recs, err = mw.Service.ReadClientRecordHistory(ctx, clientID, kind, tr)
	return recs, err
}

func (mw metricsMiddleware) WriteClientSnapshot(ctx context.Context, snapshot *fleet.ClientSnapshot) (ts time.Time, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "WriteClientSnapshot", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	ts, err = mw.Service.WriteClientSnapshot(ctx, snapshot)
	return ts, err
}

func (mw metricsMiddleware) ReadClientSnapshot(ctx context.Context, clientID string) (snapshot *fleet.ClientSnapshot, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientSnapshot", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	snapshot, err = mw.Service.ReadClientSnapshot(ctx, clientID)
	return snapshot, err
}

func (mw metricsMiddleware) MultiReadClientSnapshot(ctx context.Context, clientIDs []string) (snapshots map[string]*fleet.ClientSnapshot, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "MultiReadClientSnapshot", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	snapshots, err = mw.Service.MultiReadClientSnapshot(ctx, clientIDs)
	return snapshots, err
}

func (mw metricsMiddleware) ReadClientSnapshotHistory(ctx context.Context, clientID string, tr fleet.TimeRange) (snapshots []*fleet.ClientSnapshot, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientSnapshotHistory", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	snapshots, err = mw.Service.ReadClientSnapshotHistory(ctx, clientID, tr)
	return snapshots, err
}

func (mw metricsMiddleware) WriteClientSnapshotHistory(ctx context.Context, snapshots []*fleet.ClientSnapshot) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "WriteClientSnapshotHistory", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	err = mw.Service.WriteClientSnapshotHistory(ctx, snapshots)
	return err
}

func (mw metricsMiddleware) WriteClientStartupInfo(ctx context.Context, clientID string, info *fleet.StartupInfo) (ts time.Time, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "WriteClientStartupInfo", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	ts, err = mw.Service.WriteClientStartupInfo(ctx, clientID, info)
	return ts, err
}

func (mw metricsMiddleware) ReadClientStartupInfo(ctx context.Context, clientID string) (info *fleet.StartupInfo, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientStartupInfo", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	info, err = mw.Service.ReadClientStartupInfo(ctx, clientID)
	return info, err
}

func (mw metricsMiddleware) ReadClientStartupInfoHistory(ctx context.Context, clientID string, tr fleet.TimeRange) (infos []*fleet.StartupInfo, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientStartupInfoHistory", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	infos, err = mw.Service.ReadClientStartupInfoHistory(ctx, clientID, tr)
	return infos, err
}

func (mw metricsMiddleware) WriteClientCrashInfo(ctx context.Context, crash *fleet.ClientCrash) (ts time.Time, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "WriteClientCrashInfo", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	ts, err = mw.Service.WriteClientCrashInfo(ctx, crash)
	return ts, err
}

func (mw metricsMiddleware) ReadClientCrashInfo(ctx context.Context, clientID string) (crash *fleet.ClientCrash, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientCrashInfo", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	crash, err = mw.Service.ReadClientCrashInfo(ctx, clientID)
	return crash, err
}

func (mw metricsMiddleware) ReadClientCrashInfoHistory(ctx context.Context, clientID string, tr fleet.TimeRange) (crashes []*fleet.ClientCrash, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientCrashInfoHistory", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	crashes, err = mw.Service.ReadClientCrashInfoHistory(ctx, clientID, tr)
	return crashes, err
}

func (mw metricsMiddleware) AddClientKeywords(ctx context.Context, clientID string, keywords []string) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "AddClientKeywords", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	err = mw.Service.AddClientKeywords(ctx, clientID, keywords)
	return err
}

func (mw metricsMiddleware) RemoveClientKeyword(ctx context.Context, clientID string, keyword string) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "RemoveClientKeyword", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	err = mw.Service.RemoveClientKeyword(ctx, clientID, keyword)
	return err
}

func (mw metricsMiddleware) ListClientsForKeywords(ctx context.Context, keywords []string, startTime *time.Time) (res map[string][]string, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ListClientsForKeywords", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	res, err = mw.Service.ListClientsForKeywords(ctx, keywords, startTime)
	return res, err
}

func (mw metricsMiddleware) AddClientLabels(ctx context.Context, clientID string, owner string, names []string) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "AddClientLabels", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	err = mw.Service.AddClientLabels(ctx, clientID, owner, names)
	return err
}

func (mw metricsMiddleware) RemoveClientLabels(ctx context.Context, clientID string, owner string, names []string) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "RemoveClientLabels", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	err = mw.Service.RemoveClientLabels(ctx, clientID, owner, names)
	return err
}

func (mw metricsMiddleware) ReadClientLabels(ctx context.Context, clientID string) (labels []fleet.ClientLabel, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientLabels", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	labels, err = mw.Service.ReadClientLabels(ctx, clientID)
	return labels, err
}

func (mw metricsMiddleware) MultiReadClientLabels(ctx context.Context, clientIDs []string) (labels map[string][]fleet.ClientLabel, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "MultiReadClientLabels", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	labels, err = mw.Service.MultiReadClientLabels(ctx, clientIDs)
	return labels, err
}

func (mw metricsMiddleware) ReadAllClientLabels(ctx context.Context) (labels []fleet.ClientLabel, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadAllClientLabels", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	labels, err = mw.Service.ReadAllClientLabels(ctx)
	return labels, err
}

func (mw metricsMiddleware) ReadClientFullInfo(ctx context.Context, clientID string) (info *fleet.ClientFullInfo, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "ReadClientFullInfo", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	info, err = mw.Service.ReadClientFullInfo(ctx, clientID)
	return info, err
}

func (mw metricsMiddleware) MultiReadClientFullInfo(ctx context.Context, clientIDs []string, minLastPing *time.Time) (infos map[string]*fleet.ClientFullInfo, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "MultiReadClientFullInfo", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())
	infos, err = mw.Service.MultiReadClientFullInfo(ctx, clientIDs, minLastPing)
	return infos, err
}
