package display

import "testing"

func TestIconSystem_Fallbacks(t *testing.T) {
	icons := NewIconSystem()

	icons.SetUnicodeSupport(true)
	if got := icons.RenderIcon("keep"); got != "●" {
		t.Errorf("RenderIcon(keep) = %q with Unicode", got)
	}

	icons.SetUnicodeSupport(false)
	if got := icons.RenderIcon("dry-run"); got != "[DRY]" {
		t.Errorf("RenderIcon(dry-run) = %q without Unicode", got)
	}
	if icons.IsUnicodeSupported() {
		t.Error("Unicode support should be disabled")
	}
}

func TestIconSystem_UnknownIcon(t *testing.T) {
	icon := NewIconSystem().GetIcon("does-not-exist")
	if icon.ASCII != "?" || icon.Unicode != "?" {
		t.Errorf("Unknown icon should fall back to '?', got %+v", icon)
	}
}

func TestIconSystem_RenderWithoutColor(t *testing.T) {
	icons := NewIconSystem()
	icons.SetUnicodeSupport(false)

	colors := NewColorSystem(DefaultColorTheme(), false)
	if got := icons.RenderIconWithColor("error", colors); got != "[ERR]" {
		t.Errorf("RenderIconWithColor(error) = %q", got)
	}
}

func TestColorSystem_Disabled(t *testing.T) {
	colors := NewColorSystem(DefaultColorTheme(), false)
	if colors.IsColorSupported() {
		t.Fatal("Disabled color system should not report color support")
	}
	if got := colors.Sprintf(ColorRed, "%d failed", 2); got != "2 failed" {
		t.Errorf("Sprintf() = %q, want plain text", got)
	}
}

func TestColorSystem_Forced(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("FORCE_COLOR", "1")

	colors := NewColorSystem(DefaultColorTheme(), true)
	if !colors.IsColorSupported() {
		t.Fatal("FORCE_COLOR should enable colors")
	}
	if got := colors.Colorize("ok", ColorGreen); got == "ok" {
		t.Error("Colorize should add escape codes when forced")
	}
}

func TestGetThemeByName(t *testing.T) {
	if GetThemeByName("light") != LightColorTheme() {
		t.Error("light theme mismatch")
	}
	if GetThemeByName("plain") != PlainTextTheme() {
		t.Error("plain theme mismatch")
	}
	if GetThemeByName("unknown") != DarkColorTheme() {
		t.Error("unknown theme should fall back to dark")
	}
}
