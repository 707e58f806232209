// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import "errors"

var (
	// ErrPathNotFound is returned when a node path does not resolve and
	// missing-node creation was not requested.
	ErrPathNotFound = errors.New("node path not found")

	// ErrUnknownChild is returned when a placement decision steps into
	// a child that does not exist. This is a fatal precondition
	// violation, not a retryable condition.
	ErrUnknownChild = errors.New("unknown child node")

	// ErrBadDecision is returned when the text-generation capability
	// produces a placement decision that matches no recognized form.
	ErrBadDecision = errors.New("unrecognized placement decision")
)
