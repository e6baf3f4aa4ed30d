package dialogs

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `[yellow]Tray Keys[-]

  [green]Enter[-]    Open usage panel
  [green]Esc[-]      Hide usage panel
  [green]↑/↓[-]      Select limit
  [green]r[-]        Refresh now
  [green]s[-]        Settings
  [green]?[-]        This help
  [green]q[-]        Quit

[yellow]Settings[-]

  [green]Tab[-]      Next field
  [green]Test[-]     Try the credentials without saving
  [green]Save[-]     Store settings; applies on the next refresh
  [green]Esc[-]      Close without saving

Press [green]Escape[-] or [green]?[-] to close.`

func HelpDialog(onClose func()) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetBorder(true).SetTitle(" Help ").SetTitleAlign(tview.AlignLeft)
	tv.SetDynamicColors(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetText(helpText)
	tv.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == '?' {
			onClose()
			return nil
		}
		return event
	})
	return tv
}
