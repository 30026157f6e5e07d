package auth

// Editor учётная запись, которой разрешено менять блоки через API.
type Editor struct {
	Name    string // уникальное имя (без учёта регистра)
	KeyHash string // bcrypt хеш ключа доступа
}
