// Package model はドメインモデルを定義する。
package model

import "time"

// Todo はユーザーが作成したタスク1件を表す。
// OwnerIDは所有者のIdentity.IDを指す外部キーだが、所有者は外部の
// 認証層が管理するため参照整合性は強制しない。
// Textは作成後イミュータブルで、更新可能なのはCompletedとOwnerIDのみ。
// OwnerIDを書き換えるのはゲスト引き継ぎの移行処理だけである。
type Todo struct {
	ID        string
	Seq       int64 // 挿入順を保証する単調増加の連番
	OwnerID   string
	Text      string
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TodoPatch はTodoの部分更新を表す。
// nilのフィールドは変更しない。Textは更新対象に含めない。
type TodoPatch struct {
	Completed *bool
	OwnerID   *string
}

// IsEmpty は更新対象フィールドが1つも指定されていない場合にtrueを返す。
func (p TodoPatch) IsEmpty() bool {
	return p.Completed == nil && p.OwnerID == nil
}
