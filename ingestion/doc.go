// Package ingestion provides the pipeline that turns raw texts into index records.
//
// The Pipeline type manages the ingestion workflow:
//   - Splitting every text into overlapping chunks
//   - Embedding all chunks in one batch
//   - Adding the chunk/vector pairs to the index as a single atomic batch
//   - Persisting the index, then recording the ingestion in the document catalog
//
// Chunking, embedding and indexing run inside index.Store.Commit, so concurrent
// ingestions are serialized and a failure at any step leaves the index exactly
// as it was last persisted.
package ingestion
