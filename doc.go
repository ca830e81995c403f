// Package recall is a retrieval-augmented generation engine.
//
// Texts are split into overlapping chunks, embedded and kept in an exact
// cosine-similarity vector index persisted as a single snapshot file. Queries
// retrieve the closest chunks and hand them to a language model as context.
//
// # Usage
//
//	engine, err := recall.Open("data", recall.WithAIConfig(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	_, err = engine.Ingest(ctx, []string{"The cat sat on the mat."}, core.SourceMetadata{Source: "user", Type: "text"})
//	answer, err := engine.Chat(ctx, "Where did the cat sit?")
//
// The engine owns one data directory holding the index snapshot (index.snap)
// and a BadgerDB catalog of ingested documents (catalog/). Only one process
// may open a data directory at a time.
package recall
