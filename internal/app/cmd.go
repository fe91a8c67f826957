package app

import (
	"errors"
	"fmt"
	"strings"
)

// Command はゲートウェイサーバーの起動モードを表す。
type Command string

const (
	// CommandServe はゲートウェイAPIを公開する。
	CommandServe Command = "serve"
	// CommandWorker は課金状態の同期ワーカーを動かす。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマを最新まで適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のserveに/healthで問い合わせる。
	// distrolessイメージにはcurlがないため、コンテナのヘルスチェックはこれを使う。
	CommandHealthcheck Command = "healthcheck"
)

// commands は受け付けるサブコマンドの一覧。usage表示の順序も兼ねる。
var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ErrUnknownCommand は未対応のサブコマンドが渡されたことを表す。
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数がなければserveとする。未対応の名前はErrUnknownCommandを返し、
// 打ち間違いでAPIサーバーが起動してしまうことはない。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	name := strings.TrimSpace(args[0])
	for _, c := range commands {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q (usage: propertypro [%s])", ErrUnknownCommand, name, usage())
}

func usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return strings.Join(names, "|")
}
