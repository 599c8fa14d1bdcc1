// Package track mirrors work-unit progress to Firestore for operators. The
// tracker is write-only: resume decisions come from the checkpoint tree, so
// a tracker outage can never stall or corrupt a run.
package track

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
)

// UnitRecord is one tracked work unit.
type UnitRecord struct {
	Owner     string    `firestore:"owner"`
	Unit      string    `firestore:"unit"`
	Phase     string    `firestore:"phase"`
	Detail    string    `firestore:"detail,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// FirestoreTracker implements ports.StatusTracker over one collection, one
// document per unit.
type FirestoreTracker struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreTracker creates the client for the given project.
func NewFirestoreTracker(ctx context.Context, projectID, collection string) (*FirestoreTracker, error) {
	if projectID == "" || collection == "" {
		return nil, fmt.Errorf("tracker requires a project ID and a collection name")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreTracker{client: client, collection: collection}, nil
}

// Update upserts the unit record. Failures are logged and swallowed.
func (t *FirestoreTracker) Update(ctx context.Context, owner, unit, phase, detail string) {
	doc := t.client.Collection(t.collection).Doc(owner + "__" + unit)
	_, err := doc.Set(ctx, UnitRecord{
		Owner:     owner,
		Unit:      unit,
		Phase:     phase,
		Detail:    detail,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("status tracker update failed", "owner", owner, "unit", unit, "error", err)
	}
}

// Close releases the underlying client.
func (t *FirestoreTracker) Close() error {
	return t.client.Close()
}
