package pipeline

import "context"

// Hook is invoked between Encode and Decode inside Roundtrip, giving a
// caller the chance to move the encoded video somewhere and back —
// typically: upload it, then download the possibly-transcoded copy —
// before decoding resumes.
type Hook interface {
	// AfterEncode is called with the local path of the freshly written
	// video. It returns the local path Decode should read from: usually
	// the same path, but after a remote round-trip it may be a freshly
	// downloaded copy.
	AfterEncode(ctx context.Context, encodedPath string) (string, error)
}

// NoopHook passes the encoded path through unchanged. It is the default
// when Roundtrip is used purely to verify the codec itself, with no
// intermediate transport step.
type NoopHook struct{}

// AfterEncode implements Hook.
func (NoopHook) AfterEncode(_ context.Context, encodedPath string) (string, error) {
	return encodedPath, nil
}
