package models

import "errors"

// Стандартные ошибки приложения
var (
	// Общие ошибки ресурсов
	ErrNotFound = errors.New("resource not found")

	// Ошибки доступа
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Ошибки запроса
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidInput = errors.New("invalid input data")

	// Ошибки игрового процесса
	ErrInvalidChoice     = errors.New("choice does not exist in the current segment")
	ErrNoCurrentSegment  = errors.New("session has no current segment")
	ErrDuplicateChoiceID = errors.New("duplicate choice id in segment")

	// Ошибки генерации
	ErrGenerationFailed      = errors.New("story generation failed")
	ErrImageGenerationFailed = errors.New("image generation failed")
	ErrImageTimeout          = errors.New("Image generation timed out after 2 minutes")

	ErrInternalServer = errors.New("internal server error")
)
