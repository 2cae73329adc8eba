package mq

import "errors"

// Ошибки mq.
var (
	// ErrNoChannel — канал недоступен (соединение разорвано или закрыто).
	ErrNoChannel = errors.New("no channel available")

	// ErrConnectionClosed — Connection уже закрыт через Close.
	ErrConnectionClosed = errors.New("connection closed")
)
