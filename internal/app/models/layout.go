package models

import "github.com/a-h/templ"

type NavItem struct {
	Name string
	URL  string
	Icon string
}

type Navigation struct {
	Items []NavItem
}

type LayoutTempl struct {
	Title     string
	Identity  *Identity
	Role      *RoleRecord
	Nav       Navigation
	ActiveNav string
	Theme     string
	Content   templ.Component
}

var OfflineNav = Navigation{
	Items: []NavItem{
		{Name: "Sign in", URL: "/login"},
		{Name: "Register", URL: "/register"},
	},
}
