// Package events announces indexing outcomes over NATS.
//
// When a run makes a new collection current, a CollectionPublished event is
// published so that readers holding a cached collection name can refresh
// it. Publishing is best effort: the pipeline logs failures and carries on.
package events
