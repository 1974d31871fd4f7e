package site

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"phRestore/internal/config"
	"phRestore/internal/theme"
)

func TestFromConfig(t *testing.T) {
	s := FromConfig(config.SiteConfig{ProductName: " Restorify ", Theme: "", AnalyticsID: "G-1"})
	assert.Equal(t, "Restorify", s.ProductName)
	assert.Equal(t, theme.DefaultName, s.Theme)
	assert.Equal(t, "G-1", s.AnalyticsID)

	s = FromConfig(config.SiteConfig{Theme: "Vintage"})
	assert.Equal(t, "vintage", s.Theme)
}

func TestPageTitle(t *testing.T) {
	s := Settings{ProductName: "Restorify"}
	assert.Equal(t, "Storage | Restorify", s.PageTitle("Storage"))
	assert.Equal(t, "Restorify", s.PageTitle(""))
	assert.Equal(t, "Storage", Settings{}.PageTitle("Storage"))
}

func TestMetadata(t *testing.T) {
	s := Settings{ProductName: "Restorify"}
	tp := theme.ThemePageConfig{Metadata: theme.PageMetadata{Title: "Restore your memories", Description: "desc"}}

	md := s.Metadata(tp, "")
	assert.Equal(t, "Restore your memories | Restorify", md.Title)
	assert.Equal(t, "desc", md.Description)

	md = s.Metadata(tp, "Storage")
	assert.Equal(t, "Storage | Restorify", md.Title)
}
