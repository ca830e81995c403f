// Package openai implements ai.AIProvider against OpenAI-compatible HTTP
// APIs through langchaingo. Ollama is the usual target: point the host at
// http://localhost:11434 and the /v1 suffix is added by ai.Config.
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithEmbeddingModel("all-minilm"),
//	    ai.WithGenerationModel("mistral"),
//	))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	answer, err := provider.Generator().Generate(ctx, contextText, "Where did the cat sit?")
//
// Text sent to the server is stripped of NUL bytes and invalid UTF-8, both
// common in PDF extractions.
package openai
