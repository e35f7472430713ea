package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/Simplici0/printbill/internal/estimate"
	"github.com/Simplici0/printbill/internal/pricing"
)

type orderInput struct {
	JobType     string
	ClientName  string
	ProjectName string
	Quantity    int
	Length      string
	Breadth     string
}

type markupInput struct {
	Type    string
	Percent float64
}

func askOrder() (orderInput, error) {
	o := orderInput{JobType: estimate.DefaultJobType}
	var quantity string

	options := make([]huh.Option[string], 0, len(estimate.JobTypes()))
	for _, jt := range estimate.JobTypes() {
		options = append(options, huh.NewOption(jt, jt))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Job type").
				Options(options...).
				Value(&o.JobType),
			huh.NewInput().
				Title("Client").
				Value(&o.ClientName).
				Validate(required("client")),
			huh.NewInput().
				Title("Project name").
				Value(&o.ProjectName).
				Validate(required("project name")),
			huh.NewInput().
				Title("Quantity").
				Value(&quantity).
				Validate(func(s string) error {
					_, err := parseQuantity(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Die length (inches)").
				Value(&o.Length).
				Validate(inches("length")),
			huh.NewInput().
				Title("Die breadth (inches)").
				Value(&o.Breadth).
				Validate(inches("breadth")),
		),
	)
	if err := form.Run(); err != nil {
		return orderInput{}, err
	}
	o.Quantity, _ = parseQuantity(quantity)
	return o, nil
}

func askServices(rules estimate.JobTypeConfig, active []estimate.ServiceCode) ([]estimate.ServiceCode, error) {
	on := make(map[estimate.ServiceCode]bool, len(active))
	for _, code := range active {
		on[code] = true
	}

	var options []huh.Option[string]
	for _, code := range append(append([]estimate.ServiceCode{}, rules.ProductionServices...), rules.PostProductionServices...) {
		options = append(options, huh.NewOption(string(code), string(code)).Selected(on[code]))
	}

	var picked []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Services").
				Options(options...).
				Value(&picked),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	out := make([]estimate.ServiceCode, 0, len(picked))
	for _, p := range picked {
		if code, ok := estimate.ParseServiceCode(p); ok {
			out = append(out, code)
		}
	}
	return out, nil
}

func askMarkup() (markupInput, error) {
	m := markupInput{Type: pricing.MarkupStandard}
	var percent string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Markup").
				Options(
					huh.NewOption("Standard", pricing.MarkupStandard),
					huh.NewOption("B2B", pricing.MarkupB2B),
					huh.NewOption("Timeless", pricing.MarkupTimeless),
				).
				Value(&m.Type),
			huh.NewInput().
				Title("Markup %").
				Placeholder("0").
				Value(&percent).
				Validate(func(s string) error {
					_, err := parsePercent(s)
					return err
				}),
		),
	)
	if err := form.Run(); err != nil {
		return markupInput{}, err
	}
	m.Percent, _ = parsePercent(percent)
	return m, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func inches(field string) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("%s must be a positive number", field)
		}
		return nil
	}
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("quantity must be a positive whole number")
	}
	return n, nil
}

func parsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("markup must be zero or more")
	}
	return v, nil
}
