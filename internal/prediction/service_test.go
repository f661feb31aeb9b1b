package prediction

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/notify"
	"github.com/hitoshi/yieldvision/internal/repository"
)

// --- モック定義 ---

type mockStorageRepo struct {
	getFn func(ctx context.Context, clientID, key string) ([]byte, error)
	setFn func(ctx context.Context, clientID, key string, value []byte) error
}

func (m *mockStorageRepo) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, clientID, key)
	}
	return nil, nil
}

func (m *mockStorageRepo) Set(ctx context.Context, clientID, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, clientID, key, value)
	}
	return nil
}

func (m *mockStorageRepo) Delete(ctx context.Context, clientID, key string) error {
	return nil
}

// --- Validate テスト ---

func TestValidate_DefaultInputIsValid(t *testing.T) {
	if err := Validate(model.DefaultPredictionInput()); err != nil {
		t.Errorf("default input rejected: %v", err)
	}
}

func TestValidate_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *model.PredictionInput)
		wantErr string // 空なら成功
	}{
		{"pH 0", func(in *model.PredictionInput) { in.SoilPH = 0 }, ""},
		{"pH 14", func(in *model.PredictionInput) { in.SoilPH = 14 }, ""},
		{"pH 14.1", func(in *model.PredictionInput) { in.SoilPH = 14.1 }, "soilPh"},
		{"pH 負", func(in *model.PredictionInput) { in.SoilPH = -0.1 }, "soilPh"},
		{"水分 100", func(in *model.PredictionInput) { in.SoilMoisture = 100 }, ""},
		{"水分 101", func(in *model.PredictionInput) { in.SoilMoisture = 101 }, "soilMoisture"},
		{"地温 負", func(in *model.PredictionInput) { in.SoilTemperature = -15 }, ""},
		{"地温 NaN", func(in *model.PredictionInput) { in.SoilTemperature = math.NaN() }, "soilTemperature"},
		{"窒素 負", func(in *model.PredictionInput) { in.NitrogenLevel = -1 }, "nitrogenLevel"},
		{"リン 負", func(in *model.PredictionInput) { in.PhosphorusLevel = -1 }, "phosphorusLevel"},
		{"カリウム 大", func(in *model.PredictionInput) { in.PotassiumLevel = 10000 }, ""},
		{"有機物 101", func(in *model.PredictionInput) { in.OrganicMatter = 101 }, "organicMatter"},
		{"降水量 Inf", func(in *model.PredictionInput) { in.Rainfall = math.Inf(1) }, "rainfall"},
		{"湿度 負", func(in *model.PredictionInput) { in.Humidity = -1 }, "humidity"},
		{"日照 24", func(in *model.PredictionInput) { in.SunshineHours = 24 }, ""},
		{"日照 25", func(in *model.PredictionInput) { in.SunshineHours = 25 }, "sunshineHours"},
		{"作物 不明", func(in *model.PredictionInput) { in.CropType = "banana" }, "cropType"},
		{"作物 空", func(in *model.PredictionInput) { in.CropType = "" }, "cropType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := model.DefaultPredictionInput()
			tt.mutate(&in)
			err := Validate(in)

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *model.APIError, got %v", err)
			}
			if apiErr.Code != model.ErrCodeValidationFailed {
				t.Errorf("Code = %q", apiErr.Code)
			}
			if len(apiErr.Message) < len(tt.wantErr) || apiErr.Message[:len(tt.wantErr)] != tt.wantErr {
				t.Errorf("Message = %q, want prefix %q", apiErr.Message, tt.wantErr)
			}
		})
	}
}

func TestValidate_AllCropTypes(t *testing.T) {
	for _, c := range model.CropTypes() {
		in := model.DefaultPredictionInput()
		in.CropType = c
		if err := Validate(in); err != nil {
			t.Errorf("crop %q rejected: %v", c, err)
		}
	}
}

// --- Predict テスト ---

func TestPredict_PersistsAndEmits(t *testing.T) {
	repo := repository.NewMemoryStorageRepo()
	inbox := notify.NewInbox(0)
	svc := NewService(repo, inbox, Config{})
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	svc.intN = func(n int) int { return n - 1 }

	in := model.DefaultPredictionInput()
	in.CropType = model.CropRice

	got, err := svc.Predict(context.Background(), "c1", in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.Result.Yield != 79 || got.Result.Confidence != 99 {
		t.Errorf("result = %+v, want upper bounds 79/99", got.Result)
	}
	if !got.Result.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v", got.Result.Timestamp)
	}

	latest, err := svc.Latest(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Input != in {
		t.Errorf("Input = %+v, want %+v", latest.Input, in)
	}
	if latest.Result.Yield != 79 || !latest.Result.Timestamp.Equal(fixed) {
		t.Errorf("Result = %+v", latest.Result)
	}

	notes := inbox.Drain("c1")
	if len(notes) != 1 || notes[0].Message != "Prediction successful!" || notes[0].Severity != notify.SeveritySuccess {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestPredict_ResultWithinRange(t *testing.T) {
	svc := NewService(repository.NewMemoryStorageRepo(), nil, Config{})

	for i := 0; i < 200; i++ {
		p, err := svc.Predict(context.Background(), "c1", model.DefaultPredictionInput())
		if err != nil {
			t.Fatal(err)
		}
		if p.Result.Yield < 30 || p.Result.Yield > 79 {
			t.Fatalf("Yield = %d out of range", p.Result.Yield)
		}
		if p.Result.Confidence < 85 || p.Result.Confidence > 99 {
			t.Fatalf("Confidence = %d out of range", p.Result.Confidence)
		}
	}
}

func TestPredict_LowerBounds(t *testing.T) {
	svc := NewService(repository.NewMemoryStorageRepo(), nil, Config{})
	svc.intN = func(int) int { return 0 }

	p, err := svc.Predict(context.Background(), "c1", model.DefaultPredictionInput())
	if err != nil {
		t.Fatal(err)
	}
	if p.Result.Yield != 30 || p.Result.Confidence != 85 {
		t.Errorf("result = %+v, want 30/85", p.Result)
	}
}

func TestPredict_InvalidInput_NothingStored(t *testing.T) {
	repo := repository.NewMemoryStorageRepo()
	inbox := notify.NewInbox(0)
	svc := NewService(repo, inbox, Config{})

	in := model.DefaultPredictionInput()
	in.SoilPH = 20

	if _, err := svc.Predict(context.Background(), "c1", in); err == nil {
		t.Fatal("expected validation error")
	}
	raw, _ := repo.Get(context.Background(), "c1", DataStorageKey)
	if raw != nil {
		t.Error("invalid input must not be stored")
	}
	if n := len(inbox.Drain("c1")); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
}

func TestPredict_StorageFailure(t *testing.T) {
	repo := &mockStorageRepo{
		setFn: func(ctx context.Context, clientID, key string, value []byte) error {
			return errors.New("write failed")
		},
	}
	inbox := notify.NewInbox(0)
	svc := NewService(repo, inbox, Config{})

	if _, err := svc.Predict(context.Background(), "c1", model.DefaultPredictionInput()); err == nil {
		t.Fatal("expected error")
	}
	notes := inbox.Drain("c1")
	if len(notes) != 1 || notes[0].Severity != notify.SeverityError ||
		notes[0].Message != "There was an error processing your prediction." {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestPredict_LatencyHonorsContext(t *testing.T) {
	svc := NewService(repository.NewMemoryStorageRepo(), nil, Config{SimulatedLatency: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Predict(ctx, "c1", model.DefaultPredictionInput())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

// --- Latest テスト ---

func TestLatest_NoPrediction(t *testing.T) {
	svc := NewService(repository.NewMemoryStorageRepo(), nil, Config{})

	_, err := svc.Latest(context.Background(), "c1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNoPrediction {
		t.Errorf("err = %v, want NO_PREDICTION", err)
	}
}

func TestLatest_MalformedStoredValue(t *testing.T) {
	repo := repository.NewMemoryStorageRepo()
	ctx := context.Background()
	_ = repo.Set(ctx, "c1", DataStorageKey, []byte(`{"cropType":"wheat"}`))
	_ = repo.Set(ctx, "c1", ResultStorageKey, []byte(`not json`))

	svc := NewService(repo, nil, Config{})
	_, err := svc.Latest(ctx, "c1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNoPrediction {
		t.Errorf("err = %v, want NO_PREDICTION", err)
	}
}

func TestLatest_StorageError(t *testing.T) {
	repo := &mockStorageRepo{
		getFn: func(ctx context.Context, clientID, key string) ([]byte, error) {
			return nil, errors.New("read failed")
		},
	}
	svc := NewService(repo, nil, Config{})

	_, err := svc.Latest(context.Background(), "c1")
	var apiErr *model.APIError
	if err == nil || errors.As(err, &apiErr) {
		t.Errorf("err = %v, want a non-API storage error", err)
	}
}

func TestPredict_ClientsAreIsolated(t *testing.T) {
	svc := NewService(repository.NewMemoryStorageRepo(), nil, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = svc.Predict(ctx, id, model.DefaultPredictionInput())
		}(id)
	}
	wg.Wait()

	if _, err := svc.Latest(ctx, "c"); err == nil {
		t.Error("client without predictions must get NO_PREDICTION")
	}
	if _, err := svc.Latest(ctx, "a"); err != nil {
		t.Errorf("Latest(a): %v", err)
	}
}
