package domain

// EmbeddingDim is the fixed embedding dimensionality (Titan v2 output).
const EmbeddingDim = 1024

// EmbeddingType is the index discriminator for the embedding shard space.
// A single type today; kept explicit so a model migration can run two
// embedding generations side by side.
const EmbeddingType = "titan-v2"
