package display

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// IconSystem handles icon rendering with fallbacks
type IconSystem interface {
	GetIcon(name string) Icon
	RenderIcon(name string) string
	RenderIconWithColor(name string, colorSystem ColorSystem) string
	IsUnicodeSupported() bool
	SetUnicodeSupport(enabled bool)
}

type iconSystem struct {
	unicodeSupported bool
	icons            map[string]Icon
}

var defaultIcons = map[string]Icon{
	// Retention decisions
	"keep":    {Unicode: "●", ASCII: "+", Color: ColorGreen},
	"expire":  {Unicode: "✗", ASCII: "x", Color: ColorRed},
	"guard":   {Unicode: "◆", ASCII: "!", Color: ColorYellow},
	"skip":    {Unicode: "○", ASCII: "-", Color: ColorWhite},
	"invalid": {Unicode: "?", ASCII: "?", Color: ColorMagenta},

	// Status
	"success": {Unicode: "✓", ASCII: "[OK]", Color: ColorGreen},
	"error":   {Unicode: "✗", ASCII: "[ERR]", Color: ColorRed},
	"warning": {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
	"info":    {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorBlue},
	"dry-run": {Unicode: "◌", ASCII: "[DRY]", Color: ColorCyan},
}

// NewIconSystem creates a new icon system with Unicode detection
func NewIconSystem() IconSystem {
	return &iconSystem{
		unicodeSupported: detectUnicodeSupport(),
		icons:            defaultIcons,
	}
}

// detectUnicodeSupport checks if the terminal supports Unicode characters
func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}

	locale := os.Getenv("LC_ALL")
	if locale == "" {
		locale = os.Getenv("LANG")
	}
	if locale == "C" || locale == "POSIX" {
		return false
	}

	term := os.Getenv("TERM")
	if term == "dumb" || strings.HasPrefix(term, "vt1") {
		return false
	}

	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// GetIcon returns the icon for the given name
func (is *iconSystem) GetIcon(name string) Icon {
	if icon, ok := is.icons[name]; ok {
		return icon
	}
	return Icon{Unicode: "?", ASCII: "?", Color: ColorWhite}
}

// RenderIcon returns the Unicode or ASCII representation
func (is *iconSystem) RenderIcon(name string) string {
	icon := is.GetIcon(name)
	if is.unicodeSupported {
		return icon.Unicode
	}
	return icon.ASCII
}

// RenderIconWithColor returns the icon with color applied
func (is *iconSystem) RenderIconWithColor(name string, colorSystem ColorSystem) string {
	text := is.RenderIcon(name)
	if colorSystem != nil && colorSystem.IsColorSupported() {
		return colorSystem.Colorize(text, is.GetIcon(name).Color)
	}
	return text
}

// IsUnicodeSupported returns whether Unicode is supported
func (is *iconSystem) IsUnicodeSupported() bool {
	return is.unicodeSupported
}

// SetUnicodeSupport overrides the detected Unicode support
func (is *iconSystem) SetUnicodeSupport(enabled bool) {
	is.unicodeSupported = enabled
}
