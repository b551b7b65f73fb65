package repo

import "errors"

// Ошибки архива.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrNotFinished — попытка архивировать незавершённый run.
	ErrNotFinished = errors.New("run is not finished")
)
