// Package vectorstore is the vector-store collaborator of the indexer.
//
// Two implementations of Store are provided:
//
//   - QdrantStore talks to an external Qdrant server over gRPC. Payload
//     indexes and aliases are native Qdrant features.
//   - ChromemStore embeds chromem-go. It keeps collection schema and aliases
//     in reserved collections named "_schema" and "_aliases", which never
//     appear in ListCollections.
//
// # Errors
//
// Stores never retry. Failures are reported with the indexerr taxonomy:
//
//   - *indexerr.TransportError when the store could not be reached or the
//     request failed in flight
//   - *indexerr.SchemaError when a collection, index or point was rejected
//     as malformed
//   - ErrCollectionNotFound (wrapped) when a named collection is absent
//
// # Metrics
//
// Every operation is counted in docindex_vectorstore_operations_total with
// backend, op and result labels, and timed in
// docindex_vectorstore_operation_duration_seconds.
//
// # Usage
//
//	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, logger)
//	if err != nil {
//	    return err
//	}
//	if err := store.CreateCollection(ctx, "docs-1", 1536, vectorstore.DistanceCosine); err != nil {
//	    return err
//	}
//	err = store.Upsert(ctx, "docs-1", []vectorstore.Point{{ID: id, Vector: v, Payload: p}})
package vectorstore
