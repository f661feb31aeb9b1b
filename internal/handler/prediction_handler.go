package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/yieldvision/internal/metrics"
	"github.com/hitoshi/yieldvision/internal/model"
)

// PredictionServiceInterface は予測ハンドラーが必要とするサービスインターフェース。
type PredictionServiceInterface interface {
	// Predict は入力値を検証し、予測結果を生成して保存する。
	Predict(ctx context.Context, clientID string, in model.PredictionInput) (*model.Prediction, error)
	// Latest は直近の予測を返す。
	Latest(ctx context.Context, clientID string) (*model.Prediction, error)
}

// PredictionRecorder は予測の実行を記録するインターフェース。
type PredictionRecorder interface {
	RecordPrediction(cropType string)
}

// PredictionHandler は収量予測のHTTPハンドラー。
type PredictionHandler struct {
	service  PredictionServiceInterface
	recorder PredictionRecorder
}

// NewPredictionHandler はPredictionHandlerを生成する。
func NewPredictionHandler(service PredictionServiceInterface, recorder PredictionRecorder) *PredictionHandler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &PredictionHandler{
		service:  service,
		recorder: recorder,
	}
}

// Predict は予測フォームの送信を処理する。
// 省略されたフィールドはフォームの初期値で補う。
// POST /api/predictions
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrError(w, r)
	if !ok {
		return
	}

	in := model.DefaultPredictionInput()
	if apiErr := decodeJSON(w, r, &in); apiErr != nil {
		writeAPIErrorResponse(w, apiErr)
		return
	}

	p, err := h.service.Predict(r.Context(), clientID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.recorder.RecordPrediction(string(p.Input.CropType))
	writeJSON(w, http.StatusCreated, p)
}

// Latest は直近の予測入力と結果を返す。
// GET /api/predictions/latest
func (h *PredictionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrError(w, r)
	if !ok {
		return
	}

	p, err := h.service.Latest(r.Context(), clientID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}
