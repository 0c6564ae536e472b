// Package cache provides a similarity-keyed response cache for model
// provider calls.
//
// A SimilarityCache embeds each query with a caller-supplied Embedder and
// serves the value of the closest stored query when the cosine similarity
// reaches the configured threshold. An exact SHA-256 fingerprint lookup
// runs first so repeated prompts skip the embedding call. Entries expire
// after a TTL; RemoveExpiredEntries, Shrink and Clear let a memory-pressure
// controller reclaim space.
//
// Middleware wraps a provider call with GetOrLoad and applies a Policy and
// SkipRule so side-effecting or streaming requests are never served from
// cache.
package cache
