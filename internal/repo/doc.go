// Package repo хранит историю завершённых runs в PostgreSQL.
//
// Архив только пишется и читается для отображения истории:
// pipeline никогда не восстанавливает состояние из него.
package repo
