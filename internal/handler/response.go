package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/yieldvision/internal/middleware"
	"github.com/hitoshi/yieldvision/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
// ステータスコードはエラーコードから決まる。
func writeAPIErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, middleware.StatusForCode(apiErr.Code), apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// decodeJSON はリクエストボディをvにデコードする。
// 失敗した場合はVALIDATION_FAILEDのAPIErrorを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewValidationError("body", "must not be empty")
		}
		return model.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// clientIDOrError はコンテキストのクライアントIDを返す。
// クライアントミドルウェアを通っていない場合はレスポンスを書き込んでfalseを返す。
func clientIDOrError(w http.ResponseWriter, r *http.Request) (string, bool) {
	clientID, err := middleware.ClientIDFromContext(r.Context())
	if err != nil {
		slog.Error("client id missing from context", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return "", false
	}
	return clientID, true
}
