// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai provides abstractions for the model services used by recall.
//
// Two services are needed: an Embedder that turns text into vectors for the
// index, and a Generator that answers a question from retrieved context. An
// AIProvider bundles both so they share configuration.
//
// Implementation packages:
//
//   - ai/openai: OpenAI-compatible APIs (Ollama, LocalAI, vLLM, OpenAI) via langchaingo
//   - ai/mock: deterministic test doubles
//
// Public constructors in ai/openai return interface types; the mock
// constructors return concrete types so tests can inspect call counts and
// inject behavior.
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
package ai
