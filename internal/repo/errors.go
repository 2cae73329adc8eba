package repo

import "errors"

// Ошибки хранилища.
var (
	// ErrNotFound — run с таким ID не существует.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — коллизия идентификатора при создании.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — изменение нарушает жизненный цикл run.
	ErrInvalidState = errors.New("invalid state")
)
