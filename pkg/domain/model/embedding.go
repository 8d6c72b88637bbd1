package model

// EmbeddingDimension is the fixed vector size shared by every record kind and
// every query. Changing it requires re-embedding all stored rows, which is a
// migration concern, not a runtime one.
const EmbeddingDimension = 384
