package worker

import "errors"

// Ошибки воркера.
var (
	// ErrWorkflowNotFound — workflow из запроса не найден в БД.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrNoSteps — у workflow нет шагов, запускать нечего.
	ErrNoSteps = errors.New("workflow has no steps")

	// ErrAlreadyStarted — Start вызван повторно.
	ErrAlreadyStarted = errors.New("worker already started")
)
