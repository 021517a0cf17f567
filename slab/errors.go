package slab

import "errors"

var (
	// ErrInvalidAttribute is returned for attributes without components or
	// with a dummy record of the wrong length.
	ErrInvalidAttribute = errors.New("slab: invalid attribute")
	// ErrInvalidLaneWidth is returned when the lane width is not a power of two.
	ErrInvalidLaneWidth = errors.New("slab: lane width must be a power of two")
	// ErrInvalidCapacity is returned when a relocation target is not a legal
	// capacity (growth below one lane group, or shrinking below the live range).
	ErrInvalidCapacity = errors.New("slab: invalid capacity")
	// ErrReleased is returned when operating on a released slab.
	ErrReleased = errors.New("slab: released")
)
