package recipeflow

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("recipeflow: no store configured")
	ErrStoreClosed = errors.New("recipeflow: store closed")

	// Not found errors. Authorization denials surface as not-found so
	// callers cannot distinguish "exists but forbidden" from "absent".
	ErrRecipeNotFound    = errors.New("recipeflow: recipe not found")
	ErrScheduleNotFound  = errors.New("recipeflow: schedule not found")
	ErrExecutionNotFound = errors.New("recipeflow: execution not found")
	ErrStepNotFound      = errors.New("recipeflow: step not found")

	// Conflict errors.
	ErrRecipeExists      = errors.New("recipeflow: recipe already exists")
	ErrScheduleExists    = errors.New("recipeflow: schedule already exists")
	ErrExecutionExists   = errors.New("recipeflow: execution already exists")
	ErrInvalidTransition = errors.New("recipeflow: invalid state transition")

	// Validation errors.
	ErrValidation = errors.New("recipeflow: validation failed")
	ErrInvalidID  = errors.New("recipeflow: invalid id")
)
