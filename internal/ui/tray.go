package ui

import (
	"fmt"

	"github.com/zsprackett/quota-tray/internal/quota"
)

// TrayTitle is the one-line summary shown in the tray bar.
//
//	GLM: 1.2M/5.0M (24%)   token window data available
//	GLM: 2 limits          no TOKENS_LIMIT entry
//	GLM: !                 last refresh failed and nothing is cached
//	GLM: --                nothing fetched yet
//
// A failure with a cached snapshot keeps the numbers and appends " !".
func TrayTitle(usage *quota.Snapshot, rerr *quota.RefreshError) string {
	if usage == nil {
		if rerr != nil {
			return "GLM: !"
		}
		return "GLM: --"
	}
	var title string
	if _, ok := usage.TokenLimit(); ok {
		title = fmt.Sprintf("GLM: %s/%s (%.0f%%)",
			quota.FormatTokens(usage.UsedQuota),
			quota.FormatTokens(usage.TotalQuota),
			usage.UsagePercentage)
	} else {
		title = fmt.Sprintf("GLM: %d limits", len(usage.Limits))
	}
	if rerr != nil {
		title += " !"
	}
	return title
}
