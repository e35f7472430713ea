package estimate

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldError is a single submit-time validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// Validate checks that the tree is complete enough to submit. It never
// blocks editing; an empty result means the tree may be submitted.
func Validate(t Tree) []FieldError {
	var errs []FieldError
	add := func(field, msg string) {
		errs = append(errs, FieldError{Field: field, Message: msg})
	}

	if strings.TrimSpace(t.Client.ID) == "" && strings.TrimSpace(t.Client.Name) == "" {
		add("client", "client is required")
	}
	if strings.TrimSpace(t.OrderAndPaper.ProjectName) == "" {
		add("orderAndPaper.projectName", "project name is required")
	}
	if t.OrderAndPaper.Quantity <= 0 {
		add("orderAndPaper.quantity", "quantity must be greater than zero")
	}

	active := t.Active()
	if len(active) == 0 {
		add("services", "at least one service must be selected")
	}

	needsDie := false
	for _, code := range active {
		for _, sz := range t.Section(code).sizes() {
			if *sz.mode != SizeManual {
				needsDie = true
			}
		}
	}
	if needsDie {
		if !numeric(t.OrderAndPaper.DieSize.Length) {
			add("orderAndPaper.dieSize.length", "die length must be a number")
		}
		if !numeric(t.OrderAndPaper.DieSize.Breadth) {
			add("orderAndPaper.dieSize.breadth", "die breadth must be a number")
		}
	}

	if t.LPDetails.IsLPUsed {
		for i, c := range t.LPDetails.ColorDetails {
			if strings.TrimSpace(c.PantoneCode) == "" {
				add(fmt.Sprintf("lpDetails.colorDetails[%d].pantoneCode", i), "pantone code is required")
			}
		}
	}
	return errs
}

func numeric(s string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil && f > 0
}
