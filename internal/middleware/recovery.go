package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラーのpanicを500の統一エラーレスポンスに変換する。
// http.ErrAbortHandlerはnet/httpの接続中断に使われるため、そのまま再送出する。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				args := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				// リカバリーはロギングミドルウェアの外側にあるため、ヘッダーからリクエストIDを取る
				if id := w.Header().Get(requestIDHeader); id != "" {
					args = append(args, slog.String("request_id", id))
				}
				args = append(args, slog.String("stack", string(debug.Stack())))
				slog.Error("panic recovered", args...)

				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
