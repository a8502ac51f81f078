package pipeline

import "errors"

// ErrNoPackets is returned by Decode when no valid packet could be
// scanned out of the video at all — the video is unrelated data, was
// produced with an incompatible packet.Version, or is corrupt beyond the
// scanner's byte-resync tolerance.
var ErrNoPackets = errors.New("pipeline: no valid packets found in video")

// ErrPasswordRequired is returned by Decode when the scanned packets
// report the file as encrypted but no password was supplied.
var ErrPasswordRequired = errors.New("pipeline: file is encrypted, password required")
