package model

import "time"

// CropType は予測対象の作物種別。
type CropType string

const (
	CropWheat   CropType = "wheat"
	CropRice    CropType = "rice"
	CropCorn    CropType = "corn"
	CropSoybean CropType = "soybean"
	CropPotato  CropType = "potato"
	CropCotton  CropType = "cotton"
)

// CropTypes は選択可能な作物種別を表示順で返す。
func CropTypes() []CropType {
	return []CropType{CropWheat, CropRice, CropCorn, CropSoybean, CropPotato, CropCotton}
}

// PredictionInput は収量予測フォームの入力値。
// JSONキーはクライアントストレージの predictionData と同じ形式。
type PredictionInput struct {
	CropType        CropType `json:"cropType"`
	SoilPH          float64  `json:"soilPh"`
	SoilMoisture    float64  `json:"soilMoisture"`
	SoilTemperature float64  `json:"soilTemperature"`
	NitrogenLevel   float64  `json:"nitrogenLevel"`
	PhosphorusLevel float64  `json:"phosphorusLevel"`
	PotassiumLevel  float64  `json:"potassiumLevel"`
	OrganicMatter   float64  `json:"organicMatter"`
	Rainfall        float64  `json:"rainfall"`
	Humidity        float64  `json:"humidity"`
	SunshineHours   float64  `json:"sunshineHours"`
}

// DefaultPredictionInput はフォームの初期値を返す。
func DefaultPredictionInput() PredictionInput {
	return PredictionInput{
		CropType:        CropWheat,
		SoilPH:          6.5,
		SoilMoisture:    35,
		SoilTemperature: 22,
		NitrogenLevel:   120,
		PhosphorusLevel: 45,
		PotassiumLevel:  80,
		OrganicMatter:   3,
		Rainfall:        25,
		Humidity:        65,
		SunshineHours:   6,
	}
}

// PredictionResult は予測結果。Yield は30〜79、Confidence は85〜99の整数。
type PredictionResult struct {
	Yield      int       `json:"yield"`
	Confidence int       `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Prediction は直近の入力値と結果の組。
type Prediction struct {
	Input  PredictionInput  `json:"input"`
	Result PredictionResult `json:"result"`
}
