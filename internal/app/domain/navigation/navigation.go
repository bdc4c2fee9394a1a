// Package navigation builds the dashboard menu for a role.
package navigation

import "github.com/FACorreiaa/go-loanhub/internal/app/models"

var (
	adminItems = []models.NavItem{
		{Name: "Admin Home", URL: "/dashboard/admin-home"},
		{Name: "Manage Users", URL: "/dashboard/manage-users"},
		{Name: "All Loans", URL: "/dashboard/all-loans"},
	}
	managerItems = []models.NavItem{
		{Name: "Manager Home", URL: "/dashboard/manager-home"},
		{Name: "Pending Applications", URL: "/dashboard/pending-applications"},
		{Name: "All Loans", URL: "/dashboard/all-loans"},
	}
	borrowerItems = []models.NavItem{
		{Name: "Borrower Home", URL: "/dashboard/borrower-home"},
		{Name: "My Loans", URL: "/dashboard/my-loans"},
	}
	sharedItems = []models.NavItem{
		{Name: "My Profile", URL: "/dashboard/profile"},
	}
)

// Menu returns the dashboard entries. An unresolved role gets only the
// shared entries; a resolved role other than admin or manager gets the
// borrower set.
func Menu(signedIn bool, rec *models.RoleRecord) models.Navigation {
	if !signedIn {
		return models.OfflineNav
	}
	var items []models.NavItem
	if rec != nil {
		switch rec.Role {
		case models.RoleAdmin:
			items = append(items, adminItems...)
		case models.RoleManager:
			items = append(items, managerItems...)
		default:
			items = append(items, borrowerItems...)
		}
	}
	items = append(items, sharedItems...)
	return models.Navigation{Items: items}
}

// HomePath is the dashboard landing page for a role, empty while the role
// is unknown.
func HomePath(rec *models.RoleRecord) string {
	if rec == nil {
		return ""
	}
	switch rec.Role {
	case models.RoleAdmin:
		return "/dashboard/admin-home"
	case models.RoleManager:
		return "/dashboard/manager-home"
	default:
		return "/dashboard/borrower-home"
	}
}
