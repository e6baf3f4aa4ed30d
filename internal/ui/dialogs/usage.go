package dialogs

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zsprackett/quota-tray/internal/quota"
)

const sparkChars = "▁▂▃▄▅▆▇█"

// LimitTitle names a quota limit the way the tray menu does.
func LimitTitle(limitType string) string {
	switch limitType {
	case quota.LimitTokens:
		return "Tokens (5-hour window)"
	case quota.LimitTime:
		return "MCP calls (monthly)"
	default:
		return limitType
	}
}

// LimitRow is the one-line table summary of a limit.
func LimitRow(l quota.Limit, width int) string {
	return fmt.Sprintf(" %-22s %s %s", LimitTitle(l.Type), ProgressBar(l.Percentage, width), FormatPercent(l.Percentage))
}

// LimitDetailText renders one limit with its reset time, per-model usage and
// the history sparkline (history is oldest first).
func LimitDetailText(l quota.Limit, history []*quota.Snapshot, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\n  [yellow]%s[-]\n", LimitTitle(l.Type)))
	sb.WriteString(fmt.Sprintf("  %s  %s\n", ProgressBar(l.Percentage, 30), FormatPercent(l.Percentage)))
	sb.WriteString(fmt.Sprintf("  %s used of %s, %s remaining\n",
		humanize.Comma(l.CurrentValue), humanize.Comma(l.Usage), humanize.Comma(l.Remaining)))
	if l.NextResetTime != nil {
		sb.WriteString(fmt.Sprintf("  Resets %s [::d](%s)[::-]\n",
			FormatResetTime(*l.NextResetTime, now),
			l.NextResetTime.Local().Format("Jan 2 15:04")))
	}

	if len(l.Details) > 0 {
		sb.WriteString("\n  [yellow]By model[-]\n")
		for _, d := range l.Details {
			sb.WriteString(fmt.Sprintf("  %-20s %12s\n", d.ModelCode, humanize.Comma(d.Usage)))
		}
	}

	if l.Type == quota.LimitTokens && len(history) > 1 {
		vals := make([]float64, len(history))
		for i, s := range history {
			vals[i] = s.UsagePercentage
		}
		sb.WriteString("\n  [yellow]History (newest right)[-]\n")
		sb.WriteString(fmt.Sprintf("  %s\n", Sparkline(vals)))
		oldest := history[0].FetchedAt
		newest := history[len(history)-1].FetchedAt
		sb.WriteString(fmt.Sprintf("  [::d]%s  →  %s[::-]\n",
			oldest.Local().Format("Jan 2 15:04"),
			newest.Local().Format("Jan 2 15:04")))
	}

	return sb.String()
}

// FormatPercent formats a 0-100 percentage as a colored string.
// Values over 100 show as "[red]N% (OVER)[-]".
func FormatPercent(pct float64) string {
	if pct > 100 {
		return fmt.Sprintf("[red]%.0f%% (OVER)[-]", pct)
	}
	return fmt.Sprintf("[%s]%.1f%%[-]", colorName(pct), pct)
}

func colorName(pct float64) string {
	switch {
	case pct >= 90:
		return "red"
	case pct >= 70:
		return "yellow"
	default:
		return "green"
	}
}

// ProgressBar renders a text bar for a 0-100 percentage.
func ProgressBar(pct float64, width int) string {
	frac := pct / 100
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	empty := width - filled
	return fmt.Sprintf("[%s]%s%s[-]", colorName(pct), strings.Repeat("█", filled), strings.Repeat("░", empty))
}

// Sparkline renders 0-100 percentages, oldest first, as block characters.
func Sparkline(vals []float64) string {
	runes := []rune(sparkChars)
	var sb strings.Builder
	for _, v := range vals {
		frac := v / 100
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		sb.WriteRune(runes[int(frac*float64(len(runes)-1))])
	}
	return sb.String()
}

func FormatResetTime(t, now time.Time) string {
	d := t.Sub(now)
	if d < 0 {
		return "now"
	}
	if d < time.Hour {
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		return fmt.Sprintf("in %dh%02dm", h, m)
	}
	return fmt.Sprintf("in %dd", int(d.Hours()/24))
}
