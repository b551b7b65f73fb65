package catalog

import "errors"

// Ошибки каталога.
var (
	// ErrEmptyCatalog — каталог без шагов.
	ErrEmptyCatalog = errors.New("catalog has no steps")

	// ErrInvalidStep — шаг с невалидным описанием.
	ErrInvalidStep = errors.New("invalid step")

	// ErrDuplicateKey — ключ шага встречается дважды.
	ErrDuplicateKey = errors.New("duplicate step key")

	// ErrUnknownDependency — Requires ссылается на отсутствующий или более поздний шаг.
	ErrUnknownDependency = errors.New("unknown step dependency")

	// ErrNoResult — Requires ссылается на шаг без Extract.
	ErrNoResult = errors.New("required step publishes no result")

	// ErrReservedKey — ключ шага совпадает с полем тела запроса.
	ErrReservedKey = errors.New("reserved step key")

	// ErrMissingField — в ответе нет ожидаемого поля.
	ErrMissingField = errors.New("response field missing")
)
