// Package menu loads the kiosk menu and renders it as prompt context.
package menu

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	defaultStore    = "키오스크"
	defaultCategory = "기타"
)

var won = message.NewPrinter(language.Korean)

// Nutrition holds per-item nutrition facts.
type Nutrition struct {
	CalorieKcal float64 `json:"calorie_kcal"`
}

// Item is one orderable product.
type Item struct {
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Price     int       `json:"price"`
	Allergens []string  `json:"allergens"`
	Nutrition Nutrition `json:"nutrition"`
	Notes     string    `json:"notes"`
}

// Menu is the parsed menu.json document.
type Menu struct {
	Store         string   `json:"store"`
	Items         []Item   `json:"items"`
	AllergenVocab []string `json:"allergen_vocab"`
}

// Parse decodes a menu document.
func Parse(r io.Reader) (*Menu, error) {
	var m Menu
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("menu: decode: %w", err)
	}
	return &m, nil
}

// Load reads the menu at path. A missing file is logged and yields an empty
// menu so the assistant still runs without menu knowledge.
func Load(path string) (*Menu, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("menu: file not found, continuing without menu", "path", path)
		return &Menu{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("menu: open: %w", err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, err
	}
	slog.Info("menu: loaded", "path", path, "items", len(m.Items))
	return m, nil
}

// Empty reports whether the menu has nothing to describe.
func (m *Menu) Empty() bool {
	return m == nil || (m.Store == "" && len(m.Items) == 0 && len(m.AllergenVocab) == 0)
}

// Context renders the menu as the text injected into the system prompt.
// Categories appear in first-seen order. An empty menu renders as "".
func (m *Menu) Context() string {
	if m.Empty() {
		return ""
	}
	store := m.Store
	if store == "" {
		store = defaultStore
	}
	lines := []string{"매장명: " + store}

	var order []string
	byCategory := make(map[string][]string)
	for _, it := range m.Items {
		cat := it.Category
		if cat == "" {
			cat = defaultCategory
		}
		if _, ok := byCategory[cat]; !ok {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], it.line())
	}
	for _, cat := range order {
		lines = append(lines, "\n"+cat+":")
		lines = append(lines, byCategory[cat]...)
	}
	if len(m.AllergenVocab) > 0 {
		lines = append(lines, "\n알레르기 정보: "+strings.Join(m.AllergenVocab, ", "))
	}
	return strings.Join(lines, "\n")
}

func (it Item) line() string {
	var b strings.Builder
	b.WriteString(won.Sprintf("- %s (%d원)", it.Name, it.Price))
	if len(it.Allergens) > 0 {
		b.WriteString(" [알레르기: " + strings.Join(it.Allergens, ", ") + "]")
	}
	if it.Nutrition.CalorieKcal > 0 {
		b.WriteString(" [칼로리: " + strconv.FormatFloat(it.Nutrition.CalorieKcal, 'f', -1, 64) + "kcal]")
	}
	return b.String()
}

// Search returns the items whose name, category or notes contain query,
// case-insensitively.
func (m *Menu) Search(query string) []Item {
	if m == nil {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Item
	for _, it := range m.Items {
		if strings.Contains(strings.ToLower(it.Name), q) ||
			strings.Contains(strings.ToLower(it.Category), q) ||
			strings.Contains(strings.ToLower(it.Notes), q) {
			out = append(out, it)
		}
	}
	return out
}
