// Package mock holds a function-field implementation of fleet.Datastore for
// unit tests that need to control or observe the storage calls.
package mock

import (
	"context"

	"github.com/fleetdm/clientstore/server/fleet"
)

func ReturnFakeClientLabels(fake []fleet.ClientLabel) ReadAllClientLabelsFunc {
	return func(ctx context.Context) ([]fleet.ClientLabel, error) {
		return fake, nil
	}
}

// ReturnFakeClientMetadata serves every requested id found in fake.
func ReturnFakeClientMetadata(fake map[string]*fleet.ClientMetadata) MultiReadClientMetadataFunc {
	return func(ctx context.Context, clientIDs []string) (map[string]*fleet.ClientMetadata, error) {
		res := make(map[string]*fleet.ClientMetadata, len(clientIDs))
		for _, id := range clientIDs {
			if md, ok := fake[id]; ok {
				res[id] = md.Clone()
			}
		}
		return res, nil
	}
}
