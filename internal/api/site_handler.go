package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"phRestore/internal/site"
	"phRestore/internal/theme"
)

// SiteHandler 提供站点配置与主题页面数据。
type SiteHandler struct {
	settings site.Settings
	catalog  *theme.Catalog
}

func NewSiteHandler(settings site.Settings, catalog *theme.Catalog) *SiteHandler {
	return &SiteHandler{settings: settings, catalog: catalog}
}

// GetSite 返回产品名、当前主题、统计 ID 以及首页元信息。
// 配置的主题不存在时回退到默认主题。
func (h *SiteHandler) GetSite(c *gin.Context) {
	active := h.catalog.Resolve(h.settings.Theme)
	settings := h.settings
	settings.Theme = active.Name

	Data(c, http.StatusOK, gin.H{
		"product_name": settings.ProductName,
		"theme":        settings.Theme,
		"analytics_id": settings.AnalyticsID,
		"metadata":     settings.Metadata(active, c.Query("page")),
	})
}

func (h *SiteHandler) ListThemes(c *gin.Context) {
	Data(c, http.StatusOK, h.catalog.Names())
}

func (h *SiteHandler) GetTheme(c *gin.Context) {
	page, err := h.catalog.Lookup(c.Param("name"))
	if err != nil {
		if errors.Is(err, theme.ErrUnknownTheme) {
			NotFound(c, "theme not found")
			return
		}
		Internal(c, "failed to load theme")
		return
	}
	Data(c, http.StatusOK, page)
}
