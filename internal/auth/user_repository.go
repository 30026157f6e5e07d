package auth

import "errors"

// EditorRepository хранилище учётных записей редакторов.
type EditorRepository interface {
	// GetEditor возвращает редактора по имени или ErrEditorNotFound.
	GetEditor(name string) (*Editor, error)

	// ValidateCredentials проверяет ключ и возвращает редактора.
	ValidateCredentials(name, key string) (*Editor, error)
}

// Ошибки репозитория.
var (
	ErrEditorNotFound     = errors.New("editor not found")
	ErrEditorExists       = errors.New("editor already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
