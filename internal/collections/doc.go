// Package collections manages the lifecycle of indexed collections.
//
// Every indexing run writes into a brand-new collection named
// prefix + "-" + UUIDv7. The UUIDv7 carries the creation time in its first
// 48 bits, so collections of a prefix can be ordered by age without any
// side table. When a run finishes, FinalizeOrAbort either drops the
// collection (nothing was written) or makes it current: the alias named
// after the prefix is repointed first, then every older collection of the
// prefix is swept.
//
// Readers resolve the current collection through CurrentCollectionName,
// which prefers the alias and falls back to the newest non-empty collection.
// Collections whose suffix is not a UUIDv7 were not created here and are
// never touched.
package collections
