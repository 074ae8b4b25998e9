package todo

import "github.com/hitoshi/todoman/internal/model"

// GuestTodoLimit はゲストユーザーが作成できるTodoの上限数。
const GuestTodoLimit = 3

// CanCreate は指定のIdentityが新しいTodoを作成できるかを判定する。
// ゲストユーザーは所有するTodoがGuestTodoLimit件以上ある場合に拒否される。
// 登録ユーザーは件数に関わらず常に許可される。
// 純粋関数であり、副作用も内部状態も持たない。
func CanCreate(identity *model.Identity, currentTodoCountForOwner int) bool {
	if identity == nil {
		return false
	}
	if identity.IsGuest && currentTodoCountForOwner >= GuestTodoLimit {
		return false
	}
	return true
}
