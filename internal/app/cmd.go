package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
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

// MigrateDirection はmigrateサブコマンドの方向を表す。
type MigrateDirection string

const (
	// MigrateUp は未適用のマイグレーションをすべて適用する。
	MigrateUp MigrateDirection = "up"
	// MigrateDown は直近のマイグレーションを1つロールバックする。
	MigrateDown MigrateDirection = "down"
)

// ParseMigrateDirection は "migrate [up|down]" の方向を解析する。
// 省略時や不明な値はMigrateUpを返す。
func ParseMigrateDirection(args []string) MigrateDirection {
	if len(args) >= 2 && args[0] == "migrate" && args[1] == "down" {
		return MigrateDown
	}
	return MigrateUp
}
