package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, organization, user, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeUserAlreadyExists    = "USER_ALREADY_EXISTS"
	ErrCodeOrganizationNotFound = "ORGANIZATION_NOT_FOUND"
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeUnsupportedLogoType  = "UNSUPPORTED_LOGO_TYPE"
	ErrCodeLogoTooLarge         = "LOGO_TOO_LARGE"
	ErrCodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "No has iniciado sesión.",
		Category: "auth",
		Action:   "Inicia sesión para continuar.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "No tienes permiso para realizar esta acción.",
		Category: "auth",
		Action:   "Verifica que tu cuenta sea propietaria de la organización.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "No se encontró el usuario.",
		Category: "user",
		Action:   "Completa tu registro o vuelve a iniciar sesión.",
	}
}

// NewUserAlreadyExistsError はオンボーディング済みのユーザーが再登録しようとした場合のエラーを生成する。
func NewUserAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserAlreadyExists,
		Message:  "Tu perfil ya fue creado.",
		Category: "user",
		Action:   "Edita tu perfil desde la sección de cuenta.",
	}
}

// NewOrganizationNotFoundError は組織が見つからない場合のエラーを生成する。
func NewOrganizationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeOrganizationNotFound,
		Message:  "No se encontró la organización.",
		Category: "organization",
		Action:   "Registra una organización o selecciona otra.",
	}
}

// NewValidationError は入力値エラーを生成する。fieldは問題のある項目名。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Valor inválido en %s: %s", field, reason),
		Category: "validation",
		Action:   "Revisa los datos del formulario e inténtalo de nuevo.",
	}
}

// NewUnsupportedLogoTypeError はロゴのファイル形式を判定できない場合のエラーを生成する。
func NewUnsupportedLogoTypeError() *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedLogoType,
		Message:  "No se pudo determinar el tipo de archivo del logo.",
		Category: "validation",
		Action:   "Sube una imagen en formato PNG, JPG, GIF o WEBP.",
	}
}

// NewLogoTooLargeError はロゴのサイズ超過エラーを生成する。
func NewLogoTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeLogoTooLarge,
		Message:  fmt.Sprintf("El logo excede el tamaño máximo de %d bytes.", maxBytes),
		Category: "validation",
		Action:   "Reduce el tamaño de la imagen e inténtalo de nuevo.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Demasiadas solicitudes.",
		Category: "system",
		Action:   "Espera el tiempo indicado y vuelve a intentarlo.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ocurrió un error interno.",
		Category: "system",
		Action:   "Espera un momento y vuelve a intentarlo.",
	}
}
