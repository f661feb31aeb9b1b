package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/yieldvision/internal/chart"
	"github.com/hitoshi/yieldvision/internal/middleware"
)

// AnonymousChartNotice は未ログインの閲覧者に添える案内文。
const AnonymousChartNotice = "Please log in for full access to all visualization features."

// ChartCatalog はチャートハンドラーが必要とするデータセットの参照インターフェース。
type ChartCatalog interface {
	Names() []string
	Get(name string) (*chart.Dataset, error)
}

// ChartHandler は可視化用の静的データセットを返すHTTPハンドラー。
// 未ログインでも閲覧できるが、レスポンスに案内文が付く。
type ChartHandler struct {
	catalog ChartCatalog
}

// NewChartHandler はChartHandlerを生成する。
func NewChartHandler(catalog ChartCatalog) *ChartHandler {
	return &ChartHandler{catalog: catalog}
}

type chartListResponse struct {
	Charts []string `json:"charts"`
	Notice string   `json:"notice,omitempty"`
}

type chartResponse struct {
	*chart.Dataset
	Notice string `json:"notice,omitempty"`
}

// ListCharts はデータセット名の一覧を返す。
// GET /api/charts
func (h *ChartHandler) ListCharts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chartListResponse{
		Charts: h.catalog.Names(),
		Notice: chartNotice(r),
	})
}

// GetChart は名前で指定したデータセットを返す。
// GET /api/charts/{name}
func (h *ChartHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	ds, err := h.catalog.Get(chi.URLParam(r, "name"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chartResponse{
		Dataset: ds,
		Notice:  chartNotice(r),
	})
}

func chartNotice(r *http.Request) string {
	if middleware.SessionPresent(r) {
		return ""
	}
	return AnonymousChartNotice
}
