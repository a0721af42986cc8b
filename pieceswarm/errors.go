package pieceswarm

import "errors"

// ErrDialTimeout is returned by a Connector when a dial attempt times out.
// tryDownload logs it and moves on to the next host rather than
// abandoning the download, as it does for every other connect error.
var ErrDialTimeout = errors.New("pieceswarm: dial timeout")

// ErrVerificationFailed marks a piece that failed the Merkle path check.
// Handlers never return it to callers; it exists so tests and logging can
// name the condition without relying on a bool return value alone.
var ErrVerificationFailed = errors.New("pieceswarm: piece verification failed")
