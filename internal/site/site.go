package site

import (
	"strings"

	"phRestore/internal/config"
	"phRestore/internal/theme"
)

// Settings 是页面渲染时读取的站点信息。
type Settings struct {
	ProductName string `json:"product_name"`
	Theme       string `json:"theme"`
	AnalyticsID string `json:"analytics_id,omitempty"`
}

// Metadata 是单个页面的 <head> 元信息。
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
}

// FromConfig 从配置构造 Settings，主题为空时使用默认主题。
func FromConfig(cfg config.SiteConfig) Settings {
	themeName := strings.ToLower(strings.TrimSpace(cfg.Theme))
	if themeName == "" {
		themeName = theme.DefaultName
	}
	return Settings{
		ProductName: strings.TrimSpace(cfg.ProductName),
		Theme:       themeName,
		AnalyticsID: strings.TrimSpace(cfg.AnalyticsID),
	}
}

// PageTitle 组合页面标题与产品名，例如 "Storage | Restorify"。
func (s Settings) PageTitle(page string) string {
	page = strings.TrimSpace(page)
	switch {
	case page == "":
		return s.ProductName
	case s.ProductName == "":
		return page
	default:
		return page + " | " + s.ProductName
	}
}

// Metadata 基于主题的营销文案生成页面元信息。
func (s Settings) Metadata(t theme.ThemePageConfig, page string) Metadata {
	title := t.Metadata.Title
	if page != "" {
		title = page
	}
	return Metadata{
		Title:       s.PageTitle(title),
		Description: t.Metadata.Description,
		Keywords:    t.Metadata.Keywords,
	}
}
