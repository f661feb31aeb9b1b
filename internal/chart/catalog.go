// Package chart は可視化画面・結果画面で使う固定データセットを提供する。
package chart

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/hitoshi/yieldvision/internal/model"
)

//go:embed fixtures/*.json
var fixtures embed.FS

// Dataset は1つのチャートのデータ。Points の要素の形はチャートごとに異なる。
type Dataset struct {
	Name   string          `json:"name"`
	Title  string          `json:"title"`
	Points json.RawMessage `json:"points"`
}

// Catalog は名前で引けるデータセットの集合。読み取り専用で並行利用できる。
type Catalog struct {
	datasets map[string]Dataset
	names    []string
}

// NewCatalog は埋め込まれたフィクスチャからCatalogを生成する。
func NewCatalog() (*Catalog, error) {
	return loadCatalog(fixtures, "fixtures")
}

func loadCatalog(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("フィクスチャ一覧の取得に失敗しました: %w", err)
	}

	c := &Catalog{datasets: make(map[string]Dataset, len(entries))}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("フィクスチャの読み込みに失敗しました: %s: %w", e.Name(), err)
		}

		var ds Dataset
		if err := json.Unmarshal(raw, &ds); err != nil {
			return nil, fmt.Errorf("フィクスチャの解析に失敗しました: %s: %w", e.Name(), err)
		}
		if len(ds.Points) == 0 {
			return nil, fmt.Errorf("フィクスチャにpointsがありません: %s", e.Name())
		}
		ds.Name = strings.TrimSuffix(e.Name(), ".json")

		c.datasets[ds.Name] = ds
		c.names = append(c.names, ds.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Names はデータセット名を昇順で返す。
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Get は名前でデータセットを返す。未知の名前にはCHART_NOT_FOUNDエラーを返す。
func (c *Catalog) Get(name string) (*Dataset, error) {
	ds, ok := c.datasets[name]
	if !ok {
		return nil, model.NewChartNotFoundError(name)
	}
	return &ds, nil
}
