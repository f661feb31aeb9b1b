// Package prediction は収量予測のドメインロジックを提供する。
//
// 予測結果はモデルに基づくものではなく、範囲内の乱数で生成する。
// 入力値と結果はクライアントストレージに保存され、結果画面から参照される。
package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/notify"
	"github.com/hitoshi/yieldvision/internal/repository"
)

// クライアントストレージ上のキー
const (
	DataStorageKey   = "predictionData"
	ResultStorageKey = "predictionResult"
)

// 通知メッセージ
const (
	msgPredictionSuccess = "Prediction successful!"
	msgPredictionError   = "There was an error processing your prediction."
)

// 生成される値の範囲（両端を含む）
const (
	minYield      = 30
	maxYield      = 79
	minConfidence = 85
	maxConfidence = 99
)

// Config は予測サービスの設定。
type Config struct {
	// SimulatedLatency は結果を返す前の固定の待ち時間。0で無効。
	SimulatedLatency time.Duration
}

// Service は収量予測のサービス層。
type Service struct {
	repo    repository.StorageRepository
	emitter notify.Emitter
	config  Config

	intN func(n int) int
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.StorageRepository, emitter notify.Emitter, config Config) *Service {
	if emitter == nil {
		emitter = notify.Discard{}
	}
	return &Service{
		repo:    repo,
		emitter: emitter,
		config:  config,
		intN:    rand.IntN,
		now:     time.Now,
	}
}

// Validate は入力値が各項目の範囲内にあるかを検証する。
// 最初に見つかった違反を *model.APIError で返す。
func Validate(in model.PredictionInput) error {
	if !validCrop(in.CropType) {
		return model.NewValidationError("cropType", "must be one of wheat, rice, corn, soybean, potato, cotton")
	}

	checks := []struct {
		field  string
		value  float64
		lo, hi float64
	}{
		{"soilPh", in.SoilPH, 0, 14},
		{"soilMoisture", in.SoilMoisture, 0, 100},
		{"soilTemperature", in.SoilTemperature, math.Inf(-1), math.Inf(1)},
		{"nitrogenLevel", in.NitrogenLevel, 0, math.Inf(1)},
		{"phosphorusLevel", in.PhosphorusLevel, 0, math.Inf(1)},
		{"potassiumLevel", in.PotassiumLevel, 0, math.Inf(1)},
		{"organicMatter", in.OrganicMatter, 0, 100},
		{"rainfall", in.Rainfall, 0, math.Inf(1)},
		{"humidity", in.Humidity, 0, 100},
		{"sunshineHours", in.SunshineHours, 0, 24},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return model.NewValidationError(c.field, "must be a finite number")
		}
		if c.value < c.lo || c.value > c.hi {
			return model.NewValidationError(c.field, rangeReason(c.lo, c.hi))
		}
	}
	return nil
}

func validCrop(c model.CropType) bool {
	for _, t := range model.CropTypes() {
		if c == t {
			return true
		}
	}
	return false
}

func rangeReason(lo, hi float64) string {
	if math.IsInf(hi, 1) {
		return fmt.Sprintf("must be at least %g", lo)
	}
	return fmt.Sprintf("must be between %g and %g", lo, hi)
}

// Predict は入力値を検証し、予測結果を生成して保存する。
func (s *Service) Predict(ctx context.Context, clientID string, in model.PredictionInput) (*model.Prediction, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	if err := s.pause(ctx); err != nil {
		return nil, err
	}

	result := model.PredictionResult{
		Yield:      minYield + s.intN(maxYield-minYield+1),
		Confidence: minConfidence + s.intN(maxConfidence-minConfidence+1),
		Timestamp:  s.now().UTC(),
	}

	if err := s.store(ctx, clientID, DataStorageKey, in); err != nil {
		s.emitter.Emit(clientID, notify.SeverityError, msgPredictionError)
		return nil, err
	}
	if err := s.store(ctx, clientID, ResultStorageKey, result); err != nil {
		s.emitter.Emit(clientID, notify.SeverityError, msgPredictionError)
		return nil, err
	}

	slog.Info("prediction generated",
		slog.String("client_id", clientID),
		slog.String("crop_type", string(in.CropType)),
		slog.Int("yield", result.Yield),
	)
	s.emitter.Emit(clientID, notify.SeveritySuccess, msgPredictionSuccess)

	return &model.Prediction{Input: in, Result: result}, nil
}

// Latest は直近の予測を返す。未作成または読み込めない場合はNO_PREDICTIONエラーを返す。
func (s *Service) Latest(ctx context.Context, clientID string) (*model.Prediction, error) {
	var p model.Prediction

	found, err := s.load(ctx, clientID, DataStorageKey, &p.Input)
	if err != nil || !found {
		return nil, orNoPrediction(err)
	}
	found, err = s.load(ctx, clientID, ResultStorageKey, &p.Result)
	if err != nil || !found {
		return nil, orNoPrediction(err)
	}
	return &p, nil
}

func orNoPrediction(err error) error {
	if err != nil {
		return err
	}
	return model.NewNoPredictionError()
}

func (s *Service) store(ctx context.Context, clientID, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%sのエンコードに失敗しました: %w", key, err)
	}
	if err := s.repo.Set(ctx, clientID, key, raw); err != nil {
		return fmt.Errorf("%sの保存に失敗しました: %w", key, err)
	}
	return nil
}

// load は保存済みの値を読み込む。壊れた値は存在しないものとして扱う。
func (s *Service) load(ctx context.Context, clientID, key string, v any) (bool, error) {
	raw, err := s.repo.Get(ctx, clientID, key)
	if err != nil {
		return false, fmt.Errorf("%sの取得に失敗しました: %w", key, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		slog.Warn("ignoring malformed stored prediction",
			slog.String("client_id", clientID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return true, nil
}

func (s *Service) pause(ctx context.Context) error {
	if s.config.SimulatedLatency <= 0 {
		return nil
	}
	timer := time.NewTimer(s.config.SimulatedLatency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
