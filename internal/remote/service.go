// Package remote defines the document service contract the sync stores write
// through, plus a SQLite-backed implementation used by the single-process
// deployment and the integration tests. The contract mirrors a push-based
// document database: per-user collections of field-map documents with
// snapshot subscriptions that fire once immediately and then on every change.
package remote

import (
	"context"
	"fmt"
)

// Document is a stored field map. Values are anything JSON can carry.
type Document map[string]any

// Snapshot is one document as observed by a subscriber.
type Snapshot struct {
	ID     string
	Fields Document
}

// Update is a partial write. Set assigns field values; Remove physically
// deletes fields from the stored document. A field never appears in both;
// fields in neither are left untouched. Deletion intent is explicit here
// rather than encoded as a null placeholder.
type Update struct {
	Set    map[string]any
	Remove []string
}

// IsEmpty reports whether the update carries no changes.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Remove) == 0
}

// Validate rejects updates that both set and remove the same field.
func (u Update) Validate() error {
	if len(u.Set) == 0 || len(u.Remove) == 0 {
		return nil
	}
	for _, field := range u.Remove {
		if _, ok := u.Set[field]; ok {
			return fmt.Errorf("remote: update sets and removes field %q", field)
		}
	}
	return nil
}

// SnapshotHandler receives the full current contents of a collection.
type SnapshotHandler func(docs []Snapshot)

// ErrorHandler receives subscription delivery failures.
type ErrorHandler func(err error)

// Unsubscribe tears down a subscription.
type Unsubscribe func()

// Service is the remote document store seen by the sync engine. Collection
// paths are opaque strings scoped per user (for example "users/u1/notes").
type Service interface {
	// Subscribe registers onSnapshot for collection changes. It delivers the
	// current collection contents once before returning, then again after
	// every mutation, until the returned Unsubscribe runs or ctx ends.
	Subscribe(ctx context.Context, collection string, onSnapshot SnapshotHandler, onError ErrorHandler) (Unsubscribe, error)

	// Create stores doc under id, overwriting any existing document.
	Create(ctx context.Context, collection, id string, doc Document) error

	// Update applies a partial write to an existing document. Removed fields
	// are absent from the stored document afterwards, not null.
	Update(ctx context.Context, collection, id string, update Update) error

	// Delete removes the document entirely.
	Delete(ctx context.Context, collection, id string) error
}
