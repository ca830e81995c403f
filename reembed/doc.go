// Package reembed rebuilds the vector index by embedding every stored chunk
// again, typically after switching embedding models.
//
// The rebuild works in batches with retry and exponential backoff and reports
// progress as it goes. The new index replaces the old one only once every
// chunk has been embedded and the snapshot is saved; until then queries keep
// using the old index.
package reembed
