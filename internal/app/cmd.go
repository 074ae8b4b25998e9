package app

import "strings"

// Command はアプリケーションの起動モードを表す。
// 1つのバイナリをTodo APIサーバー、期限切れデータの掃除ワーカー、
// スキーマのマイグレーションの3役で使い分ける。
type Command string

const (
	// CommandServe はTodo APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションと放置ゲストデータを削除する
	// クリーンアップワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベーススキーマのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 大文字小文字は区別しない。引数が空またはサポート外のコマンドの
// 場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch strings.ToLower(args[0]) {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
