package dialogs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Form labels.
const (
	labelToken        = "API Token"
	labelOrganization = "Organization"
	labelProject      = "Project"
	labelInterval     = "Refresh (seconds)"
	labelNotify       = "Notifications"
	labelThreshold    = "Alert at (%)"
)

type SettingsResult struct {
	Token                string
	Organization         string
	Project              string
	RefreshInterval      int
	NotificationsEnabled bool
	Threshold            float64
}

// SettingsDialog is the settings window: a form plus a status line for Test
// results and validation errors.
type SettingsDialog struct {
	*tview.Flex
	form   *tview.Form
	status *tview.TextView
}

// NewSettingsDialog shows the current settings. The token field is
// pre-filled with the masked token; leaving it untouched keeps the stored one.
// onTest and onSave receive the parsed form; onCancel runs on Cancel or Escape.
func NewSettingsDialog(initial SettingsResult,
	onTest func(SettingsResult), onSave func(SettingsResult), onCancel func()) *SettingsDialog {

	d := &SettingsDialog{
		form:   tview.NewForm(),
		status: tview.NewTextView().SetDynamicColors(true),
	}
	d.form.SetBackgroundColor(tcell.ColorDefault)
	d.form.SetFieldBackgroundColor(tcell.ColorDefault)
	d.status.SetBackgroundColor(tcell.ColorDefault)

	d.form.AddInputField(labelToken, initial.Token, 40, nil, nil)
	d.form.AddInputField(labelOrganization, initial.Organization, 40, nil, nil)
	d.form.AddInputField(labelProject, initial.Project, 40, nil, nil)
	d.form.AddInputField(labelInterval, strconv.Itoa(initial.RefreshInterval), 8, tview.InputFieldInteger, nil)
	d.form.AddCheckbox(labelNotify, initial.NotificationsEnabled, nil)
	d.form.AddInputField(labelThreshold, strconv.FormatFloat(initial.Threshold, 'f', -1, 64), 8, tview.InputFieldFloat, nil)

	withValues := func(fn func(SettingsResult)) func() {
		return func() {
			v, err := d.Values()
			if err != nil {
				d.SetStatus(fmt.Sprintf("[red]%v[-]", err))
				return
			}
			fn(v)
		}
	}
	d.form.AddButton("Test", withValues(onTest))
	d.form.AddButton("Save", withValues(onSave))
	d.form.AddButton("Cancel", onCancel)

	d.Flex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.form, 0, 1, true).
		AddItem(d.status, 2, 0, false)
	d.Flex.SetBorder(true).SetTitle(" Settings ").SetTitleAlign(tview.AlignLeft)
	d.Flex.SetBackgroundColor(tcell.ColorDefault)

	d.Flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			onCancel()
			return nil
		}
		return event
	})

	return d
}

func (d *SettingsDialog) Form() *tview.Form {
	return d.form
}

func (d *SettingsDialog) SetStatus(text string) {
	d.status.SetText(" " + text)
}

func (d *SettingsDialog) text(label string) string {
	return strings.TrimSpace(d.form.GetFormItemByLabel(label).(*tview.InputField).GetText())
}

// Values parses the form. Credentials may be empty; they are checked when the
// config is used.
func (d *SettingsDialog) Values() (SettingsResult, error) {
	interval, err := strconv.Atoi(d.text(labelInterval))
	if err != nil || interval < 1 {
		return SettingsResult{}, fmt.Errorf("refresh interval must be a positive number of seconds")
	}
	threshold, err := strconv.ParseFloat(d.text(labelThreshold), 64)
	if err != nil || threshold <= 0 || threshold > 100 {
		return SettingsResult{}, fmt.Errorf("alert threshold must be between 0 and 100")
	}
	return SettingsResult{
		Token:                d.text(labelToken),
		Organization:         d.text(labelOrganization),
		Project:              d.text(labelProject),
		RefreshInterval:      interval,
		NotificationsEnabled: d.form.GetFormItemByLabel(labelNotify).(*tview.Checkbox).IsChecked(),
		Threshold:            threshold,
	}, nil
}
