package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/quota-tray/internal/quota"
	"github.com/zsprackett/quota-tray/internal/ui/dialogs"
)

// View is everything Home renders.
type View struct {
	Usage      *quota.Snapshot
	Err        *quota.RefreshError
	History    []*quota.Snapshot // oldest first
	Phase      string
	Refreshing bool
	Now        time.Time
}

// Home is the main screen: the tray bar, and below it the usage panel
// (limit list plus detail pane) when expanded.
type Home struct {
	*tview.Flex
	app     *tview.Application
	header  *tview.TextView
	table   *tview.Table
	detail  *tview.TextView
	message *tview.TextView
	panel   *tview.Flex
	footer  *tview.TextView

	view     View
	selected int
	expanded bool

	onRefresh  func()
	onSettings func()
	onHelp     func()
	onExpand   func()
	onQuit     func()
}

func NewHome(app *tview.Application) *Home {
	h := &Home{app: app, expanded: true}

	h.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	h.header.SetBackgroundColor(ColorBackgroundPanel)

	h.table = tview.NewTable().
		SetSelectable(true, false).
		SetSelectedStyle(tcell.StyleDefault.
			Background(ColorSelected).
			Foreground(ColorSelectedText))
	h.table.SetBackgroundColor(ColorBackground)
	h.table.SetSelectionChangedFunc(func(row, _ int) {
		h.selected = row
		h.renderDetail()
	})

	h.detail = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	h.detail.SetBackgroundColor(ColorBackground)

	h.message = tview.NewTextView().SetDynamicColors(true)
	h.message.SetBackgroundColor(ColorBackground)

	h.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	h.footer.SetBackgroundColor(ColorBackgroundPanel)

	separator := tview.NewBox().SetBackgroundColor(ColorBorder)
	content := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(h.table, 0, 45, true).
		AddItem(separator, 1, 0, false).
		AddItem(h.detail, 0, 55, false)
	h.panel = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(h.message, 2, 0, false).
		AddItem(content, 0, 1, true)

	h.Flex = tview.NewFlex().SetDirection(tview.FlexRow)
	h.layout()
	h.setupInput()
	return h
}

func (h *Home) SetCallbacks(onRefresh, onSettings, onHelp, onExpand, onQuit func()) {
	h.onRefresh = onRefresh
	h.onSettings = onSettings
	h.onHelp = onHelp
	h.onExpand = onExpand
	h.onQuit = onQuit
}

func (h *Home) Expanded() bool {
	return h.expanded
}

// SetExpanded shows or hides the usage panel, leaving only the tray bar.
func (h *Home) SetExpanded(expanded bool) {
	if h.expanded == expanded {
		return
	}
	h.expanded = expanded
	h.layout()
	if expanded && h.onExpand != nil {
		h.onExpand()
	}
}

// Focus target for the current layout.
func (h *Home) focusTarget() tview.Primitive {
	if h.expanded {
		return h.table
	}
	return h.header
}

func (h *Home) layout() {
	h.Flex.Clear()
	h.Flex.AddItem(h.header, 1, 0, !h.expanded)
	if h.expanded {
		h.Flex.AddItem(h.panel, 0, 1, true)
	} else {
		h.Flex.AddItem(tview.NewBox().SetBackgroundColor(ColorBackground), 0, 1, false)
	}
	h.Flex.AddItem(h.footer, 1, 0, false)
	h.renderFooter()
	if h.app != nil {
		h.app.SetFocus(h.focusTarget())
	}
}

// Update re-renders every part of Home from v. Must run on the UI goroutine.
func (h *Home) Update(v View) {
	h.view = v
	h.renderHeader()
	h.renderTable()
	h.renderMessage()
	h.renderDetail()
}

func (h *Home) renderHeader() {
	v := h.view
	pct := 0.0
	if v.Usage != nil {
		pct = v.Usage.UsagePercentage
	}
	icon, color := StatusIcon(v.Usage != nil, v.Err != nil, v.Refreshing, pct)
	text := fmt.Sprintf(" [#%06x]%s[-] [::b]%s[::-]", color.Hex(), icon, TrayTitle(v.Usage, v.Err))
	if v.Usage != nil && !v.Usage.FetchedAt.IsZero() {
		text += fmt.Sprintf("   [#%06x]updated %s[-]", ColorTextMuted.Hex(), humanize.RelTime(v.Usage.FetchedAt, v.Now, "ago", "from now"))
	}
	if v.Refreshing {
		text += "   [yellow]refreshing…[-]"
	}
	h.header.SetText(text)
}

func (h *Home) renderFooter() {
	if h.expanded {
		h.footer.SetText(" [green]↑↓[-] select  [green]r[-] refresh  [green]s[-] settings  [green]Esc[-] hide  [green]?[-] help  [green]q[-] quit")
		return
	}
	h.footer.SetText(" [green]Enter[-] open  [green]r[-] refresh  [green]s[-] settings  [green]?[-] help  [green]q[-] quit")
}

func (h *Home) renderMessage() {
	v := h.view
	switch {
	case v.Err != nil && v.Err.Kind == quota.NotConfigured:
		h.message.SetText(" [yellow]Not configured.[-] Press [green]s[-] to enter your API token, organization and project.")
	case v.Err != nil:
		h.message.SetText(fmt.Sprintf(" [red]%s[-]", tview.Escape(v.Err.Message)))
	case v.Usage == nil:
		h.message.SetText(" [yellow]No usage data yet.[-] Press [green]r[-] to fetch current usage.")
	default:
		h.message.SetText(fmt.Sprintf(" [::d]%s of %s tokens used, %s remaining[::-]",
			humanize.Comma(v.Usage.UsedQuota), humanize.Comma(v.Usage.TotalQuota), humanize.Comma(v.Usage.RemainingQuota)))
	}
}

func (h *Home) limits() []quota.Limit {
	if h.view.Usage == nil {
		return nil
	}
	return h.view.Usage.Limits
}

func (h *Home) renderTable() {
	h.table.Clear()
	limits := h.limits()
	for i, l := range limits {
		cell := tview.NewTableCell(dialogs.LimitRow(l, 20)).
			SetTextColor(ColorText).
			SetBackgroundColor(ColorBackground).
			SetExpansion(1).
			SetSelectable(true)
		h.table.SetCell(i, 0, cell)
	}

	// Clamp selection
	if h.selected >= len(limits) {
		h.selected = len(limits) - 1
	}
	if h.selected < 0 {
		h.selected = 0
	}
	if len(limits) > 0 {
		h.table.Select(h.selected, 0)
	}
}

func (h *Home) renderDetail() {
	limits := h.limits()
	if h.selected < 0 || h.selected >= len(limits) {
		h.detail.Clear()
		return
	}
	h.detail.SetText(dialogs.LimitDetailText(limits[h.selected], h.view.History, h.view.Now))
	h.detail.ScrollToBeginning()
}

func (h *Home) setupInput() {
	h.Flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape:
			h.SetExpanded(false)
			return nil
		case tcell.KeyEnter:
			h.SetExpanded(true)
			return nil
		}

		switch event.Rune() {
		case 'r', 'R':
			if h.onRefresh != nil {
				h.onRefresh()
			}
			return nil
		case 's', 'S':
			if h.onSettings != nil {
				h.onSettings()
			}
			return nil
		case '?':
			if h.onHelp != nil {
				h.onHelp()
			}
			return nil
		case 'q', 'Q':
			if h.onQuit != nil {
				h.onQuit()
			}
			return nil
		}
		return event
	})
}
