// Package apperr holds the sentinel errors shared by the tree engine and its surfaces.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// Persisted format.
	ErrParse      = errors.New("parse error")
	ErrValidation = errors.New("validation error")

	// Path resolution.
	ErrPathNotFound        = errors.New("path not found")
	ErrPathAmbiguous       = errors.New("path ambiguous")
	ErrResolutionCancelled = errors.New("resolution cancelled")

	// Mutations.
	ErrCycleDetected     = errors.New("cycle detected")
	ErrCannotMoveRoot    = errors.New("cannot move root")
	ErrCannotDeleteRoot  = errors.New("cannot delete root")
	ErrEmptyText         = errors.New("empty text")
	ErrNoParent          = errors.New("no parent")
	ErrInvalidAttachment = errors.New("invalid attachment")
	ErrNoAttachment      = errors.New("node has no attachment")

	// Tree selection and persistence.
	ErrTreeNotFound = errors.New("tree not found")
	ErrStaleRead    = errors.New("stale read")
)
