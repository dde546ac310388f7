package browser

import (
	"testing"

	"github.com/stepwise-run/stepwise/internal/oracle"
)

func TestEveryRoleSelectorHasAnAriaRole(t *testing.T) {
	for kind := range ariaRoles {
		if !kind.IsRole() {
			t.Errorf("%v mapped to a role but is not a role kind", kind)
		}
	}
	roleKinds := []oracle.SelectorKind{
		oracle.SelectorButton, oracle.SelectorLink, oracle.SelectorTextbox,
		oracle.SelectorCheckbox, oracle.SelectorRadio, oracle.SelectorCombobox,
		oracle.SelectorListbox, oracle.SelectorOption, oracle.SelectorMenuitem,
		oracle.SelectorTab, oracle.SelectorSearchbox, oracle.SelectorSwitch,
	}
	for _, kind := range roleKinds {
		if _, ok := ariaRoles[kind]; !ok {
			t.Errorf("role kind %v has no aria role mapping", kind)
		}
	}
}

func TestLinkAndMenuitemMatchBySubstring(t *testing.T) {
	exact := []oracle.SelectorKind{
		oracle.SelectorButton, oracle.SelectorTextbox, oracle.SelectorCheckbox,
		oracle.SelectorTab, oracle.SelectorSwitch,
	}
	for _, kind := range exact {
		if !nameMatchesExactly(kind) {
			t.Errorf("%v should match names exactly", kind)
		}
	}
	// Links and menu items carry badge/count text next to the name.
	if nameMatchesExactly(oracle.SelectorLink) {
		t.Error("links should match by substring")
	}
	if nameMatchesExactly(oracle.SelectorMenuitem) {
		t.Error("menu items should match by substring")
	}
}
