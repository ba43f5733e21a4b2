package model

import "github.com/google/uuid"

type Role string

const (
	RoleClient   Role = "client"   // Клиент / студент
	RoleProvider Role = "provider" // Провайдер / преподаватель
)

// Principal аутентифицированный пользователь, от имени которого выполняется операция
type Principal struct {
	UserID uuid.UUID
	Roles  []Role
}

// Has проверяет наличие роли
func (p Principal) Has(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
