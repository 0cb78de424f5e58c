package service

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// logging middleware logs the service actions
type loggingMiddleware struct {
	fleet.Service
	logger log.Logger
}

// NewLoggingService takes an existing service and adds a logging wrapper
func NewLoggingService(svc fleet.Service, logger log.Logger) fleet.Service {
	return loggingMiddleware{Service: svc, logger: logger}
}

// loggerDebug returns the info level if there error is non-nil, otherwise defaulting to the debug level.
func (mw loggingMiddleware) loggerDebug(err error) log.Logger {
	logger := mw.logger
	var ie fleet.ErrWithInternal
	if errors.As(err, &ie) && ie.Internal() != "" {
		logger = log.With(logger, "internal", ie.Internal())
	}
	if err != nil {
		return level.Info(logger)
	}
	return level.Debug(logger)
}

// logIteration wraps seq so that a single line is logged once the caller
// stops ranging over it.
func logIteration[V any](mw loggingMiddleware, method string, seq iter.Seq2[V, error]) iter.Seq2[V, error] {
	return func(yield func(V, error) bool) {
		var (
			err   error
			count int
		)
		defer func(begin time.Time) {
			mw.loggerDebug(err).Log(
				"method", method,
				"count", count,
				"err", err,
				"took", time.Since(begin),
			)
		}(time.Now())
		for v, verr := range seq {
			if verr != nil {
				err = verr
			} else {
				count++
			}
			if !yield(v, verr) {
				return
			}
		}
	}
}

func (mw loggingMiddleware) ListAllClientIDs(ctx context.Context, batchSize int) iter.Seq2[string, error] {
	return logIteration(mw, "ListAllClientIDs", mw.Service.ListAllClientIDs(ctx, batchSize))
}

func (mw loggingMiddleware) IterateAllClientsFullInfo(ctx context.Context, batchSize int) iter.Seq2[*fleet.ClientFullInfo, error] {
	return logIteration(mw, "IterateAllClientsFullInfo", mw.Service.IterateAllClientsFullInfo(ctx, batchSize))
}

func (mw loggingMiddleware) IterateAllClientSnapshots(ctx context.Context, batchSize int) iter.Seq2[*fleet.ClientSnapshot, error] {
	return logIteration(mw, "IterateAllClientSnapshots", mw.Service.IterateAllClientSnapshots(ctx, batchSize))
}

func (mw loggingMiddleware) WriteClientMetadata(ctx context.Context, clientID string, update fleet.ClientMetadataUpdate) (err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "WriteClientMetadata",
			"client_id", clientID,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	err = mw.Service.WriteClientMetadata(ctx, clientID, update)
	return err
}

func (mw loggingMiddleware) ReadClientMetadata(ctx context.Context, clientID string) (md *fleet.ClientMetadata, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientMetadata",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	md, err = mw.Service.ReadClientMetadata(ctx, clientID)
	return md, err
}

func (mw loggingMiddleware) MultiReadClientMetadata(ctx context.Context, clientIDs []string) (mds map[string]*fleet.ClientMetadata, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "MultiReadClientMetadata",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	mds, err = mw.Service.MultiReadClientMetadata(ctx, clientIDs)
	return mds, err
}

func (mw loggingMiddleware) CountClients(ctx context.Context) (n int, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "CountClients",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	n, err = mw.Service.CountClients(ctx)
	return n, err
}

func (mw loggingMiddleware) AppendClientRecord(ctx context.Context, clientID string, rec fleet.ClientRecord, at *time.Time) (ts time.Time, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "AppendClientRecord",
			"client_id", clientID,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	ts, err = mw.Service.AppendClientRecord(ctx, clientID, rec, at)
	return ts, err
}

func (mw loggingMiddleware) AppendClientRecords(ctx context.Context, kind fleet.RecordKind, recs []fleet.ClientRecord) (err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "AppendClientRecords",
			"kind", kind,
			"count", len(recs),
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	err = mw.Service.AppendClientRecords(ctx, kind, recs)
	return err
}

func (mw loggingMiddleware) ReadLatestClientRecord(ctx context.Context, clientID string, kind fleet.RecordKind) (rec fleet.ClientRecord, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadLatestClientRecord",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	rec, err = mw.Service.ReadLatestClientRecord(ctx, clientID, kind)
	return rec, err
}

func (mw loggingMiddleware) MultiReadLatestClientRecords(ctx context.Context, clientIDs []string, kind fleet.RecordKind) (recs map[string]fleet.ClientRecord, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "MultiReadLatestClientRecords",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	recs, err = mw.Service.MultiReadLatestClientRecords(ctx, clientIDs, kind)
	return recs, err
}

func (mw loggingMiddleware) ReadClientRecordHistory(ctx context.Context, clientID string, kind fleet.RecordKind, tr fleet.TimeRange) (recs []fleet.ClientRecord, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientRecordHistory",
			"client_id", clientID,
			"kind", kind,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	recs, err = mw.Service.ReadClientRecordHistory(ctx, clientID, kind, tr)
	return recs, err
}

func (mw loggingMiddleware) WriteClientSnapshot(ctx context.Context, snapshot *fleet.ClientSnapshot) (ts time.Time, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "WriteClientSnapshot",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	ts, err = mw.Service.WriteClientSnapshot(ctx, snapshot)
	return ts, err
}

func (mw loggingMiddleware) ReadClientSnapshot(ctx context.Context, clientID string) (snapshot *fleet.ClientSnapshot, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientSnapshot",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	snapshot, err = mw.Service.ReadClientSnapshot(ctx, clientID)
	return snapshot, err
}

func (mw loggingMiddleware) MultiReadClientSnapshot(ctx context.Context, clientIDs []string) (snapshots map[string]*fleet.ClientSnapshot, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "MultiReadClientSnapshot",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	snapshots, err = mw.Service.MultiReadClientSnapshot(ctx, clientIDs)
	return snapshots, err
}

func (mw loggingMiddleware) ReadClientSnapshotHistory(ctx context.Context, clientID string, tr fleet.TimeRange) (snapshots []*fleet.ClientSnapshot, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientSnapshotHistory",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	snapshots, err = mw.Service.ReadClientSnapshotHistory(ctx, clientID, tr)
	return snapshots, err
}

func (mw loggingMiddleware) WriteClientSnapshotHistory(ctx context.Context, snapshots []*fleet.ClientSnapshot) (err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "WriteClientSnapshotHistory",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	err = mw.Service.WriteClientSnapshotHistory(ctx, snapshots)
	return err
}

func (mw loggingMiddleware) WriteClientStartupInfo(ctx context.Context, clientID string, info *fleet.StartupInfo) (ts time.Time, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "WriteClientStartupInfo",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	ts, err = mw.Service.WriteClientStartupInfo(ctx, clientID, info)
	return ts, err
}

func (mw loggingMiddleware) ReadClientStartupInfo(ctx context.Context, clientID string) (info *fleet.StartupInfo, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientStartupInfo",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	info, err = mw.Service.ReadClientStartupInfo(ctx, clientID)
	return info, err
}

func (mw loggingMiddleware) ReadClientStartupInfoHistory(ctx context.Context, clientID string, tr fleet.TimeRange) (infos []*fleet.StartupInfo, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientStartupInfoHistory",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	infos, err = mw.Service.ReadClientStartupInfoHistory(ctx, clientID, tr)
	return infos, err
}

func (mw loggingMiddleware) WriteClientCrashInfo(ctx context.Context, crash *fleet.ClientCrash) (ts time.Time, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "WriteClientCrashInfo",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	ts, err = mw.Service.WriteClientCrashInfo(ctx, crash)
	return ts, err
}

func (mw loggingMiddleware) ReadClientCrashInfo(ctx context.Context, clientID string) (crash *fleet.ClientCrash, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientCrashInfo",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	crash, err = mw.Service.ReadClientCrashInfo(ctx, clientID)
	return crash, err
}

func (mw loggingMiddleware) ReadClientCrashInfoHistory(ctx context.Context, clientID string, tr fleet.TimeRange) (crashes []*fleet.ClientCrash, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientCrashInfoHistory",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	crashes, err = mw.Service.ReadClientCrashInfoHistory(ctx, clientID, tr)
	return crashes, err
}

func (mw loggingMiddleware) AddClientKeywords(ctx context.Context, clientID string, keywords []string) (err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "AddClientKeywords",
			"client_id", clientID,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	err = mw.Service.AddClientKeywords(ctx, clientID, keywords)
	return err
}

func (mw loggingMiddleware) RemoveClientKeyword(ctx context.Context, clientID string, keyword string) (err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "RemoveClientKeyword",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	err = mw.Service.RemoveClientKeyword(ctx, clientID, keyword)
	return err
}

func (mw loggingMiddleware) ListClientsForKeywords(ctx context.Context, keywords []string, startTime *time.Time) (res map[string][]string, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ListClientsForKeywords",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	res, err = mw.Service.ListClientsForKeywords(ctx, keywords, startTime)
	return res, err
}

func (mw loggingMiddleware) AddClientLabels(ctx context.Context, clientID string, owner string, names []string) (err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "AddClientLabels",
			"client_id", clientID,
			"owner", owner,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	err = mw.Service.AddClientLabels(ctx, clientID, owner, names)
	return err
}

func (mw loggingMiddleware) RemoveClientLabels(ctx context.Context, clientID string, owner string, names []string) (err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "RemoveClientLabels",
			"client_id", clientID,
			"owner", owner,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	err = mw.Service.RemoveClientLabels(ctx, clientID, owner, names)
	return err
}

func (mw loggingMiddleware) ReadClientLabels(ctx context.Context, clientID string) (labels []fleet.ClientLabel, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientLabels",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	labels, err = mw.Service.ReadClientLabels(ctx, clientID)
	return labels, err
}

func (mw loggingMiddleware) MultiReadClientLabels(ctx context.Context, clientIDs []string) (labels map[string][]fleet.ClientLabel, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "MultiReadClientLabels",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	labels, err = mw.Service.MultiReadClientLabels(ctx, clientIDs)
	return labels, err
}

func (mw loggingMiddleware) ReadAllClientLabels(ctx context.Context) (labels []fleet.ClientLabel, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadAllClientLabels",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	labels, err = mw.Service.ReadAllClientLabels(ctx)
	return labels, err
}

func (mw loggingMiddleware) ReadClientFullInfo(ctx context.Context, clientID string) (info *fleet.ClientFullInfo, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ReadClientFullInfo",
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	info, err = mw.Service.ReadClientFullInfo(ctx, clientID)
	return info, err
}

func (mw loggingMiddleware) MultiReadClientFullInfo(ctx context.Context, clientIDs []string, minLastPing *time.Time) (infos map[string]*fleet.ClientFullInfo, err error) {
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "MultiReadClientFullInfo",
			"count", len(clientIDs),
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	infos, err = mw.Service.MultiReadClientFullInfo(ctx, clientIDs, minLastPing)
	return infos, err
}
