package catalog

import (
	"fmt"

	"github.com/shaiso/Displacement/internal/domain"
)

// Имена полей тела запроса, которые задаёт сам pipeline.
// Ключ шага не может совпадать с ними: результаты шагов
// передаются в теле под своими ключами.
const (
	FieldFile    = "file"
	FieldJobName = "jobName"
)

// ResultExtractor извлекает именованный результат из тела ответа шага.
// Должен быть чистой функцией: не хранит состояние и не меняет body.
type ResultExtractor func(body map[string]any) (any, error)

// Step — описание одного шага pipeline.
type Step struct {
	// Key — уникальный идентификатор шага в каталоге.
	Key string

	// Label — человекочитаемое название (для сообщений об ошибке).
	Label string

	// Endpoint — путь на удалённом сервисе (например, "/upload").
	Endpoint string

	// Kind — тип тела запроса.
	Kind domain.PayloadKind

	// Requires — ключи предыдущих шагов, чьи результаты
	// передаются в теле запроса этого шага.
	Requires []string

	// Extract — извлекатель результата. Nil, если шаг ничего не публикует.
	Extract ResultExtractor
}

// HasExtractor возвращает true, если шаг публикует результат.
func (s Step) HasExtractor() bool {
	return s.Extract != nil
}

// DisplayName возвращает Label, а если он пуст — Key.
func (s Step) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Key
}

// Catalog — упорядоченный неизменяемый список шагов.
//
// Добавление, удаление и перестановка шагов — изменение данных,
// а не управляющего кода: Runner не знает ни одного ключа.
type Catalog struct {
	steps []Step
	index map[string]int
}

// New создаёт Catalog и валидирует шаги.
//
// Проверяет:
//   - ключ и endpoint не пустые
//   - тип payload известен
//   - ключ не совпадает с полями FieldFile и FieldJobName
//   - ключи уникальны
//   - Requires ссылается только на более ранние шаги с Extract
func New(steps ...Step) (*Catalog, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		steps: make([]Step, 0, len(steps)),
		index: make(map[string]int, len(steps)),
	}

	for i, step := range steps {
		if step.Key == "" {
			return nil, fmt.Errorf("%w: step #%d has empty key", ErrInvalidStep, i)
		}
		if step.Endpoint == "" {
			return nil, fmt.Errorf("%w: step %s has empty endpoint", ErrInvalidStep, step.Key)
		}
		if !step.Kind.IsValid() {
			return nil, fmt.Errorf("%w: step %s has unknown payload kind %q", ErrInvalidStep, step.Key, step.Kind)
		}
		if step.Key == FieldFile || step.Key == FieldJobName {
			return nil, fmt.Errorf("%w: %s", ErrReservedKey, step.Key)
		}
		if _, exists := c.index[step.Key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, step.Key)
		}
		for _, dep := range step.Requires {
			pos, ok := c.index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrUnknownDependency, step.Key, dep)
			}
			if !c.steps[pos].HasExtractor() {
				return nil, fmt.Errorf("%w: %s requires %s", ErrNoResult, step.Key, dep)
			}
		}

		// Копируем Requires, чтобы вызывающий код не мог изменить каталог
		step.Requires = append([]string(nil), step.Requires...)

		c.index[step.Key] = i
		c.steps = append(c.steps, step)
	}

	return c, nil
}

// MustNew — как New, но паникует при ошибке. Для статических каталогов.
func MustNew(steps ...Step) *Catalog {
	c, err := New(steps...)
	if err != nil {
		panic(err)
	}
	return c
}

// Steps возвращает копию шагов в порядке выполнения.
func (c *Catalog) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// Keys возвращает ключи шагов в порядке выполнения.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.steps))
	for i, s := range c.steps {
		keys[i] = s.Key
	}
	return keys
}

// Len возвращает количество шагов.
func (c *Catalog) Len() int {
	return len(c.steps)
}

// Get возвращает шаг по ключу.
func (c *Catalog) Get(key string) (Step, bool) {
	i, ok := c.index[key]
	if !ok {
		return Step{}, false
	}
	return c.steps[i], true
}

// Index возвращает позицию шага или -1.
func (c *Catalog) Index(key string) int {
	i, ok := c.index[key]
	if !ok {
		return -1
	}
	return i
}

// Has проверяет наличие шага.
func (c *Catalog) Has(key string) bool {
	_, ok := c.index[key]
	return ok
}

// ExtractorCount возвращает количество шагов с извлекателем результата.
func (c *Catalog) ExtractorCount() int {
	n := 0
	for _, s := range c.steps {
		if s.HasExtractor() {
			n++
		}
	}
	return n
}
