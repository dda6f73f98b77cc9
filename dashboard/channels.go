// Package dashboard folds realtime metric pushes into the merged aggregate
// state served to the executive dashboard.
package dashboard

// Logical update channels pushed by the ERP backend. Payload shapes are
// owned by the backend and treated as opaque partial updates here: each
// payload is a subset of the aggregate's named buckets.
const (
	ChannelApprovals  = "approval_update"   // approval metrics (purchase orders, expense claims, ...)
	ChannelBudget     = "budget_update"     // budget / financial metrics
	ChannelAttendance = "attendance_update" // attendance metrics
	ChannelOrg        = "org_update"        // company / organization metrics
)

// Channels lists every update channel the feed subscribes to.
var Channels = []string{
	ChannelApprovals,
	ChannelBudget,
	ChannelAttendance,
	ChannelOrg,
}
