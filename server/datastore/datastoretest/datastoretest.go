// Package datastoretest holds the behaviour every fleet.Datastore backend
// must exhibit when driven through the service. Backends run it from their
// own tests with RunTests.
package datastoretest

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/service"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

// TestFunctions is the conformance suite.
var TestFunctions = [...]func(*testing.T, fleet.Datastore){
	testMetadataRoundTrip,
	testMetadataPartialMerge,
	testMetadataUnknownClient,
	testMalformedClientIDs,
	testStructuredAddress,
	testListAllClientIDs,
	testAppendUnknownClient,
	testAutoTimestamps,
	testHistoryInclusive,
	testBackfillPointer,
	testSameTimestampReplaces,
	testRewriteAppendsHistory,
	testSubMicrosecondBounds,
	testBatchValidation,
	testBatchWrite,
	testKernelHistory,
	testSnapshotUpdatesStartupInfo,
	testIndependentPointers,
	testCrashInfo,
	testMultiReadClientSnapshot,
	testKeywords,
	testKeywordsStartTime,
	testKeywordsUnicode,
	testLabels,
	testLabelsUnknownClient,
	testReadAllClientLabels,
	testFullInfo,
	testFullInfoPingCutoff,
	testIterateAllClientsFullInfo,
	testIterateAllClientSnapshots,
}

// RunTests runs every function of the suite against a datastore returned by
// newDS, which must be empty.
func RunTests(t *testing.T, newDS func(t *testing.T) fleet.Datastore) {
	for _, f := range TestFunctions {
		t.Run(FunctionName(f), func(t *testing.T) {
			f(t, newDS(t))
		})
	}
}

// FunctionName returns the unqualified name of f.
func FunctionName(f func(*testing.T, fleet.Datastore)) string {
	fullName := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
	elements := strings.Split(fullName, ".")
	return elements[len(elements)-1]
}

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time {
	return baseTime.Add(offset)
}

func clientID(i int) string {
	return fmt.Sprintf("C.%016x", i)
}

func newService(ds fleet.Datastore) fleet.Service {
	return service.NewService(ds, log.NewNopLogger(), clock.C)
}

func registerClient(t *testing.T, svc fleet.Service, id string) {
	t.Helper()
	require.NoError(t, svc.WriteClientMetadata(context.Background(), id, fleet.ClientMetadataUpdate{
		FirstSeen: &baseTime,
	}))
}

// appendAt stores rec at the explicit timestamp ts and returns the effective
// timestamp.
func appendAt(t *testing.T, svc fleet.Service, rec fleet.ClientRecord, ts time.Time) time.Time {
	t.Helper()
	got, err := svc.AppendClientRecord(context.Background(), rec.RecordClientID(), rec, &ts)
	require.NoError(t, err)
	return got
}

// subMicro is an instant that is not a whole number of microseconds.
var subMicro = time.Date(2025, 3, 1, 15, 30, 0, 123456500, time.UTC)

func newSnapshot(id string, ts time.Time, kernel string) *fleet.ClientSnapshot {
	return &fleet.ClientSnapshot{
		ClientID:  id,
		Timestamp: ts,
		Kernel:    kernel,
		OSRelease: "Linux",
		Arch:      "x86_64",
		KnowledgeBase: fleet.KnowledgeBase{
			FQDN: "host-" + id + ".example.com",
			OS:   "Linux",
		},
		StartupInfo: fleet.StartupInfo{
			BootTime: 1234,
			ClientInfo: fleet.ClientInformation{
				ClientName:    "clientstore-agent",
				ClientVersion: 3400,
			},
		},
	}
}

func snapshotKernels(snaps []*fleet.ClientSnapshot) []string {
	res := make([]string, 0, len(snaps))
	for _, s := range snaps {
		res = append(res, s.Kernel)
	}
	return res
}

// timestamps returns the timestamps of recs in microseconds since the epoch.
func timestamps[T fleet.ClientRecord](recs []T) []int64 {
	res := make([]int64, 0, len(recs))
	for _, r := range recs {
		res = append(res, r.RecordTimestamp().UnixMicro())
	}
	return res
}

func micros(ts ...time.Time) []int64 {
	res := make([]int64, 0, len(ts))
	for _, t := range ts {
		res = append(res, t.UnixMicro())
	}
	return res
}

func requireTimeEqual(t *testing.T, expected time.Time, actual *time.Time) {
	t.Helper()
	require.NotNil(t, actual)
	require.True(t, expected.Equal(*actual), "expected %s, got %s", expected, *actual)
}
