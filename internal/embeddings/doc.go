// Package embeddings turns chunk text into vectors.
//
// A Client performs one embedding round trip for a batch of texts. Two are
// provided: OpenAIClient (langchaingo's OpenAI LLM) and TEIClient for a
// Text Embeddings Inference server. The Batcher drives a Client over a whole
// run: fixed-size batches, submitted one after another, with the output kept
// parallel to the input and every vector checked for a consistent dimension.
package embeddings
