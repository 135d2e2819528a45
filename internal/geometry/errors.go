package geometry

import "errors"

var (
	// ErrNotFound means an operand matched no cached feature.
	ErrNotFound = errors.New("geometry: feature not found")

	// ErrAmbiguous means a title matched more than one feature.
	ErrAmbiguous = errors.New("geometry: title matches more than one feature")

	// ErrNotGeometric means an operand has no usable geometry.
	ErrNotGeometric = errors.New("geometry: feature has no line or polygon geometry")

	// ErrNoIntersection means the operands do not intersect.
	ErrNoIntersection = errors.New("geometry: operands do not intersect")

	// ErrEmptyResult means the operation would leave nothing of the target.
	ErrEmptyResult = errors.New("geometry: result is empty")

	// ErrNotSingle means an expand did not produce exactly one geometry.
	ErrNotSingle = errors.New("geometry: expand result is not a single geometry")

	// ErrUnsupported means the operand type combination is not handled.
	ErrUnsupported = errors.New("geometry: unsupported operand types")
)
