package mq

import "errors"

// Ошибки шины событий.
var (
	// ErrNoChannel — AMQP канал недоступен (нет соединения).
	ErrNoChannel = errors.New("no channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrUnexpectedMessage — сообщение не является событием pipeline.
	ErrUnexpectedMessage = errors.New("unexpected message type")
)
