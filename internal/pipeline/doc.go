// Package pipeline выполняет каталог шагов для одного загруженного файла.
//
// Основные типы:
//   - Context         — общее состояние run: jobName, исходный файл, результаты шагов
//   - ProgressTracker — статус каждого шага (PENDING/IN_FLIGHT/COMPLETED/FAILED)
//   - PayloadBuilder  — построение тела запроса шага (multipart или JSON)
//   - Runner          — конечный автомат: шаги строго по порядку, fail-fast
//
// Шаги выполняются последовательно: следующий шаг стартует только после
// ответа на предыдущий. Первая ошибка прерывает run, результаты уже
// завершённых шагов остаются доступны. Retry нет — только новый run.
package pipeline
