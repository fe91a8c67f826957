package session

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーコード定数。UI層はコードで分岐し、Messageをそのまま表示できる。
const (
	CodeNotAuthenticated      = "NOT_AUTHENTICATED"
	CodeNetwork               = "NETWORK_ERROR"
	CodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	CodeAdLoadFailed          = "AD_LOAD_FAILED"
	CodeAdFailed              = "AD_FAILED"
	CodeUserCanceled          = "USER_CANCELED"
	CodeNoActiveSubscription  = "NO_ACTIVE_SUBSCRIPTION"
	CodeServerRejected        = "SERVER_REJECTED"
	CodeOperationInProgress   = "OPERATION_IN_PROGRESS"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeInvalidSubscriptionID = "INVALID_SUBSCRIPTION_ID"
)

// Error はセッションコアの操作が返すエラー。
// Messageはユーザーにそのまま表示できる文言で、Errは原因となったエラー。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode はerrがcodeを持つ*Errorかどうかを返す。
func IsCode(err error, code string) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// RemoteError はゲートウェイが返したエラー応答を表す。
// gateway.APIErrorがこれを満たす。
type RemoteError interface {
	error
	StatusCode() int
	ErrorCode() string
	ErrorMessage() string
}

// Confirmation はサーバーが2xxで受理したものの、応答を読み取れなかったエラーを表す。
// gateway.DecodeErrorがこれを満たす。
type Confirmation interface {
	error
	Confirmed() bool
}

// confirmed はerrがサーバー側で確定済みの操作によるものかを返す。
func confirmed(err error) bool {
	var c Confirmation
	return errors.As(err, &c) && c.Confirmed()
}

// サーバーが返すエラーコードのうち、クライアント側で意味を持つもの。
const (
	remoteUnauthorized         = "UNAUTHORIZED"
	remoteInvalidCredentials   = "INVALID_CREDENTIALS"
	remoteInsufficientBalance  = "INSUFFICIENT_BALANCE"
	remoteNoActiveSubscription = "NO_ACTIVE_SUBSCRIPTION"
)

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func errNotAuthenticated() *Error {
	return newError(CodeNotAuthenticated, "ログインが必要です", nil)
}

func errInProgress() *Error {
	return newError(CodeOperationInProgress, "別の操作を処理中です。完了までお待ちください", nil)
}

func errInsufficientBalance(balance, required int) *Error {
	return newError(CodeInsufficientBalance,
		fmt.Sprintf("報酬ユニットが不足しています（残高 %d、必要 %d）", balance, required), nil)
}

// errInterrupted は呼び出し元のタイムアウトやキャンセルで待機を打ち切ったことを表す。
func errInterrupted(err error) *Error {
	return newError(CodeNetwork, "通信がタイムアウトしたか中断されました。時間をおいて再度お試しください", err)
}

func errNoActiveSubscription() *Error {
	return newError(CodeNoActiveSubscription, "有効な購読がありません", nil)
}

// fromGateway はゲートウェイ呼び出しのエラーをセッションエラーに変換する。
// 応答を得られなかった場合と5xxはNETWORK_ERROR、それ以外の拒否はサーバーの文言を保持する。
func fromGateway(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	if confirmed(err) {
		return newError(CodeNetwork, "サーバーの応答を読み取れませんでした。時間をおいて再度お試しください", err)
	}

	var re RemoteError
	if !errors.As(err, &re) {
		return newError(CodeNetwork, "サーバーに接続できませんでした。通信環境を確認してください", err)
	}

	switch {
	case re.StatusCode() == http.StatusUnauthorized || re.ErrorCode() == remoteUnauthorized:
		if re.ErrorCode() == remoteInvalidCredentials {
			return newError(CodeServerRejected, re.ErrorMessage(), err)
		}
		return newError(CodeNotAuthenticated, "セッションの有効期限が切れました。再度ログインしてください", err)
	case re.ErrorCode() == remoteInsufficientBalance:
		return newError(CodeInsufficientBalance, re.ErrorMessage(), err)
	case re.ErrorCode() == remoteNoActiveSubscription:
		return newError(CodeNoActiveSubscription, re.ErrorMessage(), err)
	case re.StatusCode() >= http.StatusInternalServerError:
		return newError(CodeNetwork, "サーバーで一時的なエラーが発生しました。時間をおいて再度お試しください", err)
	default:
		msg := re.ErrorMessage()
		if msg == "" {
			msg = "サーバーがリクエストを拒否しました"
		}
		return newError(CodeServerRejected, msg, err)
	}
}
