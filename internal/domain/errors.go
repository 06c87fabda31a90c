package domain

import "errors"

var (
	// ErrInvalidConfiguration is returned when engine options are rejected before a run starts
	ErrInvalidConfiguration = errors.New("invalid engine configuration")

	// ErrEmbeddingUnavailable is returned when the embedding capability fails or times out
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrIndexUnavailable is returned when nearest-neighbor search fails or times out
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrMissingSignalData marks a candidate that lacks a price or name needed by a signal
	ErrMissingSignalData = errors.New("missing signal data")

	// ErrDimensionMismatch is returned when vectors of different lengths are mixed
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrStoreFailure is returned when the record/result store fails
	ErrStoreFailure = errors.New("store operation failed")

	// ErrPublishFailure is returned when results cannot be published
	ErrPublishFailure = errors.New("result publish failed")
)
