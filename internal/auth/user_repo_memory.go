package auth

import (
	"strings"
	"sync"
)

// MemoryEditorRepo потокобезопасный репозиторий редакторов из конфигурации.
type MemoryEditorRepo struct {
	mu      sync.RWMutex
	editors map[string]*Editor // key = lowercase(name)
}

// NewMemoryEditorRepo создаёт пустой репозиторий.
func NewMemoryEditorRepo() *MemoryEditorRepo {
	return &MemoryEditorRepo{editors: make(map[string]*Editor)}
}

// AddEditor добавляет редактора с уже посчитанным bcrypt хешем ключа.
func (r *MemoryEditorRepo) AddEditor(name, keyHash string) error {
	key := normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.editors[key]; exists {
		return ErrEditorExists
	}
	r.editors[key] = &Editor{Name: name, KeyHash: keyHash}
	return nil
}

// GetEditor ищет редактора без учёта регистра.
func (r *MemoryEditorRepo) GetEditor(name string) (*Editor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	editor, ok := r.editors[normalize(name)]
	if !ok {
		return nil, ErrEditorNotFound
	}
	return editor, nil
}

// ValidateCredentials проверяет ключ. Неизвестное имя и неверный ключ неразличимы.
func (r *MemoryEditorRepo) ValidateCredentials(name, key string) (*Editor, error) {
	editor, err := r.GetEditor(name)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !CheckKey(editor.KeyHash, key) {
		return nil, ErrInvalidCredentials
	}
	return editor, nil
}

// Len число редакторов
func (r *MemoryEditorRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.editors)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
