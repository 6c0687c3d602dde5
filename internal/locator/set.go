// internal/locator/set.go
package locator

import (
	"errors"
	"fmt"
	"reflect"
)

// Set names every element the session interacts with. Fields can be overridden
// from configuration when the portal markup drifts.
type Set struct {
	// Sign-on page.
	SignonForm     Locator `mapstructure:"signon_form"`
	SignonUser     Locator `mapstructure:"signon_user"`
	SignonPassword Locator `mapstructure:"signon_password"`
	SignonCommit   Locator `mapstructure:"signon_commit"`
	SignedIn       Locator `mapstructure:"signed_in"`

	// Organism page readiness markers.
	GlobusButton Locator `mapstructure:"globus_button"`
	SubmitButton Locator `mapstructure:"submit_button"`
	FileTree     Locator `mapstructure:"file_tree"`

	OrganismName      Locator `mapstructure:"organism_name"`
	PermissionWarning Locator `mapstructure:"permission_warning"`

	// File tree, "%s" is the group or file name.
	TreeRoot       Locator `mapstructure:"tree_root"`
	GroupLabels    Locator `mapstructure:"group_labels"`
	GroupContainer Locator `mapstructure:"group_container"`
	GroupToggle    Locator `mapstructure:"group_toggle"`
	FileLabels     Locator `mapstructure:"file_labels"`
	FileLabel      Locator `mapstructure:"file_label"`
	FileCheckbox   Locator `mapstructure:"file_checkbox"`

	// KBase login modal shown after the push button.
	KBaseLoginForm     Locator `mapstructure:"kbase_login_form"`
	KBaseUser          Locator `mapstructure:"kbase_user"`
	KBasePassword      Locator `mapstructure:"kbase_password"`
	KBaseLoginButton   Locator `mapstructure:"kbase_login_button"`
	ResultDialog       Locator `mapstructure:"result_dialog"`
	ResultBody         Locator `mapstructure:"result_body"`
	ResultDialogOK     Locator `mapstructure:"result_dialog_ok"`
	AcceptedFiles      Locator `mapstructure:"accepted_files"`
	RejectedFiles      Locator `mapstructure:"rejected_files"`
	PushErrorIndicator Locator `mapstructure:"push_error"`
}

// Defaults returns the locators for the genome portal's organism download page.
func Defaults() Set {
	return Set{
		SignonForm:     Locator{Name: "sign-on form", Selector: "form"},
		SignonUser:     Locator{Name: "sign-on login input", Selector: "input[name=login]"},
		SignonPassword: Locator{Name: "sign-on password input", Selector: "input[name=password]"},
		SignonCommit:   Locator{Name: "sign-on commit button", Selector: "input[name=commit]"},
		SignedIn:       Locator{Name: "signed-in marker", ID: "highlight-me"},

		GlobusButton: Locator{Name: "Globus button", ID: "downloadForm:fileTreePanel", Then: ".together input", VisibleOnly: true},
		SubmitButton: Locator{Name: "PtKB button", Selector: "input.pushToKbaseClass"},
		FileTree:     Locator{Name: "file tree", Selector: "div.rich-tree-node-children", VisibleOnly: true},

		OrganismName:      Locator{Name: "organism name", Selector: "div.organismName"},
		PermissionWarning: Locator{Name: "permission warning", Selector: "div.warning", Contains: "you do not have permission"},

		TreeRoot:       Locator{Name: "file tree root", Selector: "div.rich-tree"},
		GroupLabels:    Locator{Name: "file group labels", Selector: "div.rich-tree > div.rich-tree-node-children > table.rich-tree-node td.rich-tree-node-text b"},
		GroupContainer: Locator{Name: "file group container", Selector: "b", Text: "%s", Closest: "table", Next: "div.rich-tree-node-children"},
		GroupToggle:    Locator{Name: "file group toggle", Selector: "b", Text: "%s", Closest: "table", Then: "td.rich-tree-node-handle a"},
		FileLabels:     Locator{Name: "file labels", Selector: "b"},
		FileLabel:      Locator{Name: "file label", Selector: "b", Text: "%s"},
		FileCheckbox:   Locator{Name: "file checkbox", Selector: "b", Text: "%s", Closest: "td", Then: "input[type=checkbox]"},

		KBaseLoginForm:     Locator{Name: "KBase login form", Selector: "form[name=form]", VisibleOnly: true},
		KBaseUser:          Locator{Name: "KBase user input", Selector: "form[name=form] input[name=user_id]"},
		KBasePassword:      Locator{Name: "KBase password input", Selector: "form[name=form] input[name=password]"},
		KBaseLoginButton:   Locator{Name: "KBase login button", Selector: "form[name=form]", Closest: ".modal", Then: ".modal-footer a", VisibleOnly: true},
		ResultDialog:       Locator{Name: "push result dialog", ID: "downloadForm:showFilesPushedToKbaseContentTable"},
		ResultBody:         Locator{Name: "push result body", ID: "supportedFileTypes", Closest: ".modal-body"},
		ResultDialogOK:     Locator{Name: "push result OK button", ID: "downloadForm:showFilesPushedToKbaseContentTable", Then: "input[type=button]"},
		AcceptedFiles:      Locator{Name: "accepted files", ID: "acceptedFiles"},
		RejectedFiles:      Locator{Name: "rejected files", ID: "rejectedFiles"},
		PushErrorIndicator: Locator{Name: "push error", Selector: "div.kbasePushError", VisibleOnly: true},
	}
}

// Validate checks every locator in the set.
func (s Set) Validate() error {
	var errs []error
	v := reflect.ValueOf(s)
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		l, ok := v.Field(i).Interface().(Locator)
		if !ok {
			continue
		}
		if err := l.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Field(i).Name, err))
		}
	}
	return errors.Join(errs...)
}
