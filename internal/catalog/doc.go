// Package catalog описывает упорядоченный список шагов pipeline.
//
// Каталог — чистые данные: ключ, endpoint, тип тела запроса
// и необязательный извлекатель результата. Порядок шагов фиксирован
// и определяет порядок выполнения.
package catalog
