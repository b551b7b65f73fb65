package pipeline

import (
	"sync"

	"github.com/shaiso/Displacement/internal/domain"
)

// Context — общее состояние одного run.
//
// Context создаётся при старте run и заменяется целиком при следующей
// загрузке файла. Писать в него может только Runner; внешние потребители
// (API, CLI) только читают.
type Context struct {
	jobName string
	source  *domain.Artifact

	// order — ключи шагов в порядке появления результатов.
	order   []string
	results map[string]any

	mu sync.RWMutex
}

// NamedResult — результат шага с его ключом.
type NamedResult struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// NewContext создаёт Context для run.
func NewContext(jobName string, source *domain.Artifact) *Context {
	return &Context{
		jobName: jobName,
		source:  source,
		results: make(map[string]any),
	}
}

// JobName возвращает имя задания. Не меняется в течение run.
func (c *Context) JobName() string {
	return c.jobName
}

// Source возвращает исходный файл.
func (c *Context) Source() *domain.Artifact {
	return c.source
}

// Result возвращает результат шага по ключу.
func (c *Context) Result(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.results[key]
	return v, ok
}

// Results возвращает результаты в порядке появления.
func (c *Context) Results() []NamedResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]NamedResult, len(c.order))
	for i, key := range c.order {
		out[i] = NamedResult{Key: key, Value: c.results[key]}
	}
	return out
}

// ResultMap возвращает копию результатов.
func (c *Context) ResultMap() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Len возвращает количество результатов.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// setResult сохраняет результат шага.
func (c *Context) setResult(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.results[key]; !exists {
		c.order = append(c.order, key)
	}
	c.results[key] = value
}
