package service

import "errors"

// Structural and user-correctable failures surfaced by the pipeline. Each is
// scoped to a single request; nothing here is retried internally.
var (
	// ErrNoContours is the primary user-correctable tracing failure: the
	// mask contained no iso-contours at all (wrong threshold or mode).
	ErrNoContours = errors.New("no contours found; try adjusting threshold or extraction mode")

	// ErrInvalidPolygon means simplification plus repair still produced an
	// empty or degenerate polygon.
	ErrInvalidPolygon = errors.New("tracing produced invalid polygon; try a different simplify epsilon or threshold")

	// ErrEmptyPolygon means the mesh stage received nothing to build from.
	ErrEmptyPolygon = errors.New("empty polygon")

	// ErrZeroWidth means the polygon's bounding width is zero or negative,
	// so no scale to the target width exists.
	ErrZeroWidth = errors.New("invalid polygon bounds: zero width")

	// ErrInnerCollapsed means the inward wall offset produced nothing even
	// after bounded outward growth of the outline.
	ErrInnerCollapsed = errors.New("inner offset collapsed; increase width_mm or reduce wall_mm")
)
