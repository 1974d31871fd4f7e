package theme

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultName 是配置缺省时使用的主题。
const DefaultName = "default"

// ErrUnknownTheme 表示目录中没有该主题。
var ErrUnknownTheme = errors.New("unknown theme")

// ThemePageConfig 描述一个主题化营销页面的全部静态内容。
type ThemePageConfig struct {
	Name         string        `yaml:"name" json:"name"`
	Metadata     PageMetadata  `yaml:"metadata" json:"metadata"`
	Palette      Palette       `yaml:"palette" json:"palette"`
	Hero         Hero          `yaml:"hero" json:"hero"`
	Features     []Feature     `yaml:"features" json:"features"`
	Steps        []Step        `yaml:"steps" json:"steps"`
	Testimonials []Testimonial `yaml:"testimonials" json:"testimonials"`
	Pricing      []PricingTier `yaml:"pricing" json:"pricing"`
	FAQ          []FAQItem     `yaml:"faq" json:"faq"`
}

type PageMetadata struct {
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Keywords    []string `yaml:"keywords" json:"keywords,omitempty"`
}

type Palette struct {
	Primary    string `yaml:"primary" json:"primary"`
	Accent     string `yaml:"accent" json:"accent"`
	Background string `yaml:"background" json:"background"`
	Foreground string `yaml:"foreground" json:"foreground"`
}

type CallToAction struct {
	Label string `yaml:"label" json:"label"`
	Href  string `yaml:"href" json:"href"`
}

type Hero struct {
	Title       string       `yaml:"title" json:"title"`
	Subtitle    string       `yaml:"subtitle" json:"subtitle"`
	BeforeImage string       `yaml:"before_image" json:"before_image"`
	AfterImage  string       `yaml:"after_image" json:"after_image"`
	Primary     CallToAction `yaml:"primary_cta" json:"primary_cta"`
	Secondary   CallToAction `yaml:"secondary_cta" json:"secondary_cta"`
}

type Feature struct {
	Icon        string `yaml:"icon" json:"icon"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

type Step struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

type Testimonial struct {
	Quote  string `yaml:"quote" json:"quote"`
	Author string `yaml:"author" json:"author"`
	Role   string `yaml:"role" json:"role,omitempty"`
}

type PricingTier struct {
	Name        string   `yaml:"name" json:"name"`
	PriceMonth  string   `yaml:"price_month" json:"price_month"`
	Credits     int      `yaml:"credits" json:"credits"`
	Highlighted bool     `yaml:"highlighted" json:"highlighted"`
	Perks       []string `yaml:"perks" json:"perks"`
}

type FAQItem struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

//go:embed themes.yaml
var builtinThemes []byte

// Catalog 保存按名称索引的主题。
type Catalog struct {
	themes map[string]ThemePageConfig
}

// LoadBuiltin 解析内嵌的主题目录。
func LoadBuiltin() (*Catalog, error) {
	return Parse(builtinThemes)
}

// Parse 从 YAML 列表解析主题目录，必须包含 default 主题。
func Parse(data []byte) (*Catalog, error) {
	var list []ThemePageConfig
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode themes: %w", err)
	}

	themes := make(map[string]ThemePageConfig, len(list))
	for _, t := range list {
		name := normalize(t.Name)
		if name == "" {
			return nil, errors.New("theme without name")
		}
		if _, dup := themes[name]; dup {
			return nil, fmt.Errorf("duplicate theme %q", name)
		}
		t.Name = name
		themes[name] = t
	}
	if _, ok := themes[DefaultName]; !ok {
		return nil, fmt.Errorf("theme catalog has no %q theme", DefaultName)
	}
	return &Catalog{themes: themes}, nil
}

// Lookup 按名称查找主题。
func (c *Catalog) Lookup(name string) (ThemePageConfig, error) {
	t, ok := c.themes[normalize(name)]
	if !ok {
		return ThemePageConfig{}, fmt.Errorf("%w: %q", ErrUnknownTheme, name)
	}
	return t, nil
}

// Resolve 查找主题，空名或未知名称回落到 default。
func (c *Catalog) Resolve(name string) ThemePageConfig {
	if t, err := c.Lookup(name); err == nil {
		return t
	}
	return c.themes[DefaultName]
}

// Names 返回排序后的主题名。
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.themes))
	for name := range c.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
