// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, reward, subscription, crm, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeWeakPassword          = "WEAK_PASSWORD"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeProfileNotFound       = "PROFILE_NOT_FOUND"
	ErrCodeInvalidRewardAmount   = "INVALID_REWARD_AMOUNT"
	ErrCodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	ErrCodeInvalidFeature        = "INVALID_FEATURE"
	ErrCodeFeatureLocked         = "FEATURE_LOCKED"
	ErrCodeSubscriptionNotFound  = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeSubscriptionNotActive = "SUBSCRIPTION_NOT_ACTIVE"
	ErrCodeNoActiveSubscription  = "NO_ACTIVE_SUBSCRIPTION"
	ErrCodeBillingUnavailable    = "BILLING_UNAVAILABLE"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeValidation            = "VALIDATION_FAILED"
	ErrCodePropertyLimit         = "PROPERTY_LIMIT"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeCSRFRejected          = "CSRF_REJECTED"
)

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
// どちらが誤っているかは明かさない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewWeakPasswordError はパスワード要件を満たさない場合のエラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードは%d文字以上で入力してください。", minLength),
		Category: "validation",
		Action:   "より長いパスワードを指定してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロフィールが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRewardAmountError は付与・消費量が許容範囲外の場合のエラーを生成する。
func NewInvalidRewardAmountError(amount, max int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRewardAmount,
		Message:  fmt.Sprintf("無効な報酬ユニット数です: %d（1〜%dの範囲で指定してください）", amount, max),
		Category: "reward",
		Action:   "広告視聴を最初からやり直してください。",
	}
}

// NewInsufficientBalanceError は報酬ユニット残高不足エラーを生成する。
func NewInsufficientBalanceError(balance, required int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientBalance,
		Message:  fmt.Sprintf("報酬ユニットが不足しています（残高: %d、必要: %d）。", balance, required),
		Category: "reward",
		Action:   "広告を視聴して報酬ユニットを獲得してください。",
	}
}

// NewInvalidFeatureError は未定義の機能名が指定された場合のエラーを生成する。
func NewInvalidFeatureError(feature string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFeature,
		Message:  fmt.Sprintf("不明な機能です: %s", feature),
		Category: "reward",
		Action:   "利用可能な機能名を指定してください。",
	}
}

// NewFeatureLockedError は機能がプレミアムまたは報酬ユニットによる解放を必要とする場合のエラーを生成する。
func NewFeatureLockedError(feature string) *APIError {
	return &APIError{
		Code:     ErrCodeFeatureLocked,
		Message:  fmt.Sprintf("この機能を利用するにはプレミアムプランまたは報酬ユニットが必要です: %s", feature),
		Category: "reward",
		Action:   "プレミアムにアップグレードするか、報酬ユニットを使って機能を解放してください。",
	}
}

// NewSubscriptionNotFoundError は購読が見つからない場合のエラーを生成する。
func NewSubscriptionNotFoundError(subscriptionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotFound,
		Message:  fmt.Sprintf("指定された購読が見つかりません: %s", subscriptionID),
		Category: "subscription",
		Action:   "購読IDを確認してください。",
	}
}

// NewSubscriptionNotActiveError は課金プロバイダー側で購読が有効化されていない場合のエラーを生成する。
func NewSubscriptionNotActiveError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotActive,
		Message:  fmt.Sprintf("購読が有効ではありません（状態: %s）。", status),
		Category: "subscription",
		Action:   "支払い手続きが完了しているか確認してください。",
	}
}

// NewNoActiveSubscriptionError は解約対象の購読が存在しない場合のエラーを生成する。
func NewNoActiveSubscriptionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoActiveSubscription,
		Message:  "有効な購読がありません。",
		Category: "subscription",
		Action:   "購読状況を確認してください。",
	}
}

// NewBillingUnavailableError は課金プロバイダーとの通信に失敗した場合のエラーを生成する。
func NewBillingUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBillingUnavailable,
		Message:  fmt.Sprintf("課金サービスとの通信に失敗しました: %s", reason),
		Category: "subscription",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotFoundError はCRMリソースが見つからない場合のエラーを生成する。
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", resource, id),
		Category: "crm",
		Action:   "IDを確認してください。",
	}
}

// NewPropertyLimitError は無料プランの物件登録上限に達した場合のエラーを生成する。
func NewPropertyLimitError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodePropertyLimit,
		Message:  fmt.Sprintf("無料プランの物件登録数が上限（%d件）に達しています。", limit),
		Category: "crm",
		Action:   "プレミアムにアップグレードするか、不要な物件を削除してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒ほど待ってから再度お試しください。", retryAfterSec),
	}
}

// NewCSRFRejectedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFRejectedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFRejected,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
