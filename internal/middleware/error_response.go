package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrorResponseBody はエラーレスポンスのJSONボディ。
type ErrorResponseBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail はエラーの詳細情報。
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// WriteErrorResponse はAPIErrorをJSONレスポンスとして書き出す。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	body := ErrorResponseBody{
		Error: ErrorDetail{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Action:  apiErr.Action,
		},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteInternalServerError は詳細を隠した500レスポンスを書き出す。
// 内部エラーの内容をクライアントに漏らさない。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "サーバー内部でエラーが発生しました",
		Category: "system",
	})
}
