// Package embedding turns texts into vectors through an ai.Embedder.
//
// The Adapter splits large inputs into batches, embeds them concurrently on a
// bounded worker pool and reassembles the vectors in input order. It also
// enforces that a model always returns vectors of one dimension.
package embedding
