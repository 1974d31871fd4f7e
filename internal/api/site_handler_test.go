package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phRestore/internal/site"
	"phRestore/internal/theme"
)

func newSiteRouter(t *testing.T, settings site.Settings) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	catalog, err := theme.LoadBuiltin()
	require.NoError(t, err)

	h := NewSiteHandler(settings, catalog)
	router := gin.New()
	router.GET("/api/site", h.GetSite)
	router.GET("/api/themes", h.ListThemes)
	router.GET("/api/themes/:name", h.GetTheme)
	return router
}

func TestSiteHandler_GetSite(t *testing.T) {
	router := newSiteRouter(t, site.Settings{ProductName: "Restorify", Theme: "vintage", AnalyticsID: "G-123"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/site?page=Storage", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			ProductName string        `json:"product_name"`
			Theme       string        `json:"theme"`
			AnalyticsID string        `json:"analytics_id"`
			Metadata    site.Metadata `json:"metadata"`
		} `json:"data"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "Restorify", body.Data.ProductName)
	assert.Equal(t, "vintage", body.Data.Theme)
	assert.Equal(t, "G-123", body.Data.AnalyticsID)
	assert.Equal(t, "Storage | Restorify", body.Data.Metadata.Title)
}

func TestSiteHandler_UnknownConfiguredThemeFallsBack(t *testing.T) {
	router := newSiteRouter(t, site.Settings{ProductName: "Restorify", Theme: "neon"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/site", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Theme string `json:"theme"`
		} `json:"data"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, theme.DefaultName, body.Data.Theme)
}

func TestSiteHandler_Themes(t *testing.T) {
	router := newSiteRouter(t, site.Settings{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/themes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var names struct {
		Data []string `json:"data"`
	}
	decodeBody(t, rec, &names)
	assert.Contains(t, names.Data, "default")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/themes/modern", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data theme.ThemePageConfig `json:"data"`
	}
	decodeBody(t, rec, &page)
	assert.Equal(t, "modern", page.Data.Name)
	assert.NotEmpty(t, page.Data.Hero.Title)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/themes/neon", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
