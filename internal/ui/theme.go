package ui

import "github.com/gdamore/tcell/v2"

// Theme colors for the TUI.
var (
	ColorBackground      = tcell.NewHexColor(0x1e1e2e)
	ColorBackgroundPanel = tcell.NewHexColor(0x181825)
	ColorBackgroundElem  = tcell.NewHexColor(0x313244)
	ColorPrimary         = tcell.NewHexColor(0x89b4fa) // blue
	ColorText            = tcell.NewHexColor(0xcdd6f4)
	ColorTextMuted       = tcell.NewHexColor(0x6c7086)
	ColorSuccess         = tcell.NewHexColor(0xa6e3a1) // green
	ColorWarning         = tcell.NewHexColor(0xf9e2af) // yellow
	ColorError           = tcell.NewHexColor(0xf38ba8) // red
	ColorBorder          = tcell.NewHexColor(0x45475a)
	ColorSelected        = tcell.NewHexColor(0x89b4fa)
	ColorSelectedText    = tcell.NewHexColor(0x1e1e2e)
)

// Tray status icons
const (
	IconOK           = "●"
	IconWarn         = "◐"
	IconUnconfigured = "○"
	IconError        = "✗"
	IconRefreshing   = "⟳"
)

// Usage thresholds for bar colours, in percent.
const (
	WarnPercent     = 70
	CriticalPercent = 90
)

// UsageColor maps a usage percentage to green, yellow or red.
func UsageColor(pct float64) tcell.Color {
	switch {
	case pct >= CriticalPercent:
		return ColorError
	case pct >= WarnPercent:
		return ColorWarning
	default:
		return ColorSuccess
	}
}

// StatusIcon picks the tray icon for the current state.
func StatusIcon(hasUsage, hasError, refreshing bool, pct float64) (string, tcell.Color) {
	switch {
	case refreshing:
		return IconRefreshing, ColorPrimary
	case hasError:
		return IconError, ColorError
	case !hasUsage:
		return IconUnconfigured, ColorTextMuted
	case pct >= WarnPercent:
		return IconWarn, UsageColor(pct)
	default:
		return IconOK, ColorSuccess
	}
}
