package models

import "time"

// PermissionLevel уровень доступа сотрудника к заявкам: view < review < manage.
type PermissionLevel string

const (
	PermissionView   PermissionLevel = "view"
	PermissionReview PermissionLevel = "review"
	PermissionManage PermissionLevel = "manage"
)

var permissionRank = map[PermissionLevel]int{
	PermissionView:   1,
	PermissionReview: 2,
	PermissionManage: 3,
}

// Valid проверяет, что уровень известен.
func (l PermissionLevel) Valid() bool {
	_, ok := permissionRank[l]
	return ok
}

// Satisfies сообщает, покрывает ли уровень l требуемый уровень required.
func (l PermissionLevel) Satisfies(required PermissionLevel) bool {
	have, ok := permissionRank[l]
	if !ok {
		return false
	}
	need, ok := permissionRank[required]
	if !ok {
		return false
	}
	return have >= need
}

// ApplicationPermission выданное сотруднику право на работу с заявками.
type ApplicationPermission struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	UserEmail  string          `json:"user_email,omitempty"`
	Permission PermissionLevel `json:"permission"`
	GrantedBy  *string         `json:"granted_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
