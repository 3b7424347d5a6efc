package models

import (
	"fmt"
	"strings"
)

// ReferentialAction is the ON DELETE / ON UPDATE behaviour of a foreign key.
type ReferentialAction string

const (
	ActionRestrict   ReferentialAction = "RESTRICT"
	ActionCascade    ReferentialAction = "CASCADE"
	ActionSetNull    ReferentialAction = "SET NULL"
	ActionNoAction   ReferentialAction = "NO ACTION"
	ActionSetDefault ReferentialAction = "SET DEFAULT"
)

var referentialActions = []ReferentialAction{
	ActionRestrict,
	ActionCascade,
	ActionSetNull,
	ActionNoAction,
	ActionSetDefault,
}

// ParseReferentialAction accepts any casing and underscores ("set_null"). Empty means NO ACTION.
func ParseReferentialAction(s string) (ReferentialAction, error) {
	norm := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
	if norm == "" {
		return ActionNoAction, nil
	}
	for _, a := range referentialActions {
		if string(a) == norm {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown referential action %q", s)
}

func (a ReferentialAction) Valid() bool {
	for _, v := range referentialActions {
		if v == a {
			return true
		}
	}
	return false
}

// OrDefault returns NO ACTION for the zero value.
func (a ReferentialAction) OrDefault() ReferentialAction {
	if a == "" {
		return ActionNoAction
	}
	return a
}
