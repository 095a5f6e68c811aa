package widget

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"agyntsynq/internal/entities"
)

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Theme is the set of colors derived from a chatbot's theme color.
type Theme struct {
	Color     string
	Companion string
	Gradient  string
}

// Presentation is what the shell shows before any message.
type Presentation struct {
	Name  string
	Theme Theme
}

// NormalizeColor returns color as #rrggbb, or "" when it is not a hex color.
func NormalizeColor(color string) string {
	m := hexColor.FindStringSubmatch(strings.TrimSpace(color))
	if m == nil {
		return ""
	}
	hex := strings.ToLower(m[1])
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	return "#" + hex
}

// Darken scales every channel of a #rrggbb color by 1-fraction.
func Darken(color string, fraction float64) string {
	color = NormalizeColor(color)
	if color == "" {
		return ""
	}
	out := "#"
	for i := 1; i < 7; i += 2 {
		c, _ := strconv.ParseUint(color[i:i+2], 16, 8)
		out += fmt.Sprintf("%02x", int(math.Round(float64(c)*(1-fraction))))
	}
	return out
}

// DeriveTheme falls back to the default color for invalid input.
func DeriveTheme(color string) Theme {
	base := NormalizeColor(color)
	if base == "" {
		base = entities.DefaultThemeColor
	}
	companion := Darken(base, 0.2)
	return Theme{
		Color:     base,
		Companion: companion,
		Gradient:  "linear-gradient(135deg, " + base + ", " + companion + ")",
	}
}

func presentationOf(cfg *entities.WidgetConfig) Presentation {
	if cfg == nil {
		return Presentation{Name: entities.DefaultWidgetName, Theme: DeriveTheme("")}
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = entities.DefaultWidgetName
	}
	return Presentation{Name: name, Theme: DeriveTheme(cfg.ThemeColor)}
}
