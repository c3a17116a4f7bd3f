package chart

import "github.com/lendscope-labs/lendscope/internal/plan"

// Palette is the color set of one presentation theme. Themes never affect
// data selection, only layout and trace colors.
type Palette struct {
	Primary    string
	Secondary  string
	Success    string
	Warning    string
	Danger     string
	Series     []string
	Background string
	Paper      string
	Text       string
	Grid       string
}

var lightPalette = Palette{
	Primary:   "#2563eb",
	Secondary: "#7c3aed",
	Success:   "#059669",
	Warning:   "#d97706",
	Danger:    "#dc2626",
	Series: []string{
		"#2563eb", "#7c3aed", "#059669", "#d97706", "#dc2626",
		"#0891b2", "#db2777", "#65a30d", "#ea580c", "#4f46e5",
	},
	Background: "#ffffff",
	Paper:      "#f9fafb",
	Text:       "#111827",
	Grid:       "#e5e7eb",
}

var darkPalette = Palette{
	Primary:   "#60a5fa",
	Secondary: "#a78bfa",
	Success:   "#34d399",
	Warning:   "#fbbf24",
	Danger:    "#f87171",
	Series: []string{
		"#60a5fa", "#a78bfa", "#34d399", "#fbbf24", "#f87171",
		"#22d3ee", "#f472b6", "#a3e635", "#fb923c", "#818cf8",
	},
	Background: "#111827",
	Paper:      "#1f2937",
	Text:       "#f9fafb",
	Grid:       "#374151",
}

// paletteFor returns the palette of a theme, defaulting to light.
func paletteFor(theme plan.Theme) Palette {
	if theme == plan.ThemeDark {
		return darkPalette
	}
	return lightPalette
}

// seriesColor cycles the theme's series colors.
func (p Palette) seriesColor(i int) string {
	return p.Series[i%len(p.Series)]
}
