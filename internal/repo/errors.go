package repo

import "errors"

// Общие ошибки хранилищ.
var (
	// ErrUnknownStore — неизвестный тип хранилища в конфигурации.
	ErrUnknownStore = errors.New("unknown store kind")

	// ErrCorruptDocument — сохранённый документ flow не читается.
	ErrCorruptDocument = errors.New("corrupt flow document")
)
