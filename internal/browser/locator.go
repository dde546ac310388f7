package browser

import (
	"github.com/playwright-community/playwright-go"

	"github.com/stepwise-run/stepwise/internal/oracle"
)

var ariaRoles = map[oracle.SelectorKind]playwright.AriaRole{
	oracle.SelectorButton:    *playwright.AriaRoleButton,
	oracle.SelectorLink:      *playwright.AriaRoleLink,
	oracle.SelectorTextbox:   *playwright.AriaRoleTextbox,
	oracle.SelectorCheckbox:  *playwright.AriaRoleCheckbox,
	oracle.SelectorRadio:     *playwright.AriaRoleRadio,
	oracle.SelectorCombobox:  *playwright.AriaRoleCombobox,
	oracle.SelectorListbox:   *playwright.AriaRoleListbox,
	oracle.SelectorOption:    *playwright.AriaRoleOption,
	oracle.SelectorMenuitem:  *playwright.AriaRoleMenuitem,
	oracle.SelectorTab:       *playwright.AriaRoleTab,
	oracle.SelectorSearchbox: *playwright.AriaRoleSearchbox,
	oracle.SelectorSwitch:    *playwright.AriaRoleSwitch,
}

// nameMatchesExactly reports whether a role locator should match the
// accessible name exactly. Links and menu items carry supplementary text
// (badges, counts) often enough that they get substring matching instead.
func nameMatchesExactly(kind oracle.SelectorKind) bool {
	return kind != oracle.SelectorLink && kind != oracle.SelectorMenuitem
}

// resolveLocator maps a decision's selector onto a locator, preferring
// semantic role+name, then text, label and placeholder, with raw CSS as
// the escape hatch. First() bounds ambiguous matches to the first hit.
func (p *Page) resolveLocator(kind oracle.SelectorKind, value string) playwright.Locator {
	if role, ok := ariaRoles[kind]; ok {
		return p.page.GetByRole(role, playwright.PageGetByRoleOptions{
			Name:  value,
			Exact: playwright.Bool(nameMatchesExactly(kind)),
		}).First()
	}
	switch kind {
	case oracle.SelectorText:
		return p.page.GetByText(value).First()
	case oracle.SelectorLabel:
		return p.page.GetByLabel(value).First()
	case oracle.SelectorPlaceholder:
		return p.page.GetByPlaceholder(value, playwright.PageGetByPlaceholderOptions{
			Exact: playwright.Bool(true),
		}).First()
	default:
		return p.page.Locator(value).First()
	}
}
