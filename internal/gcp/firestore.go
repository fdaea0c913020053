package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/documentpdfflow/internal/failures"
)

// FirestoreTrackerConfig selects where failure records live when
// FAILURE_STORE=firestore.
type FirestoreTrackerConfig struct {
	ProjectID  string
	Collection string
	Policy     failures.Policy
}

func (c FirestoreTrackerConfig) validate() error {
	switch {
	case c.ProjectID == "":
		return fmt.Errorf("projectID must be provided for the firestore failure tracker")
	case c.Collection == "":
		return fmt.Errorf("collection must be provided for the firestore failure tracker")
	case c.Policy.Base <= 0 || c.Policy.Max < c.Policy.Base:
		return fmt.Errorf("invalid retry policy: base=%s max=%s", c.Policy.Base, c.Policy.Max)
	}
	return nil
}

// NewFirestoreTracker connects to Firestore and returns a failure tracker
// keeping one document per (type, id) in cfg.Collection. The client lives for
// the whole instance.
func NewFirestoreTracker(ctx context.Context, cfg FirestoreTrackerConfig) (*failures.Firestore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return failures.NewFirestore(client, cfg.Collection, cfg.Policy), nil
}
