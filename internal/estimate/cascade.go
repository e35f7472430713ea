package estimate

// CascadePlan is the ordered list of actions an activation cascade
// dispatches, plus the section to expand afterwards ("" for none).
type CascadePlan struct {
	Actions  []Action
	Expanded ServiceCode
}

// PlanCascade deactivates every registered service and activates the
// defaults of jobType with seeded payloads.
func PlanCascade(t Tree, jobType string, s Seeder) CascadePlan {
	rules := JobTypeRules(jobType)
	die := t.OrderAndPaper.DieSize

	plan := CascadePlan{Actions: make([]Action, 0, len(registry)+len(rules.Defaults()))}
	for _, svc := range registry {
		plan.Actions = append(plan.Actions, UpdateSection{
			Service: svc.Code,
			Patch:   map[string]any{svc.InUseField: false},
			Source:  SourceCascade,
		})
	}
	for _, code := range rules.Defaults() {
		if _, ok := Lookup(code); !ok {
			continue
		}
		plan.Actions = append(plan.Actions, UpdateSection{
			Service: code,
			Patch:   s.Payload(code, die),
			Source:  SourceCascade,
		})
	}

	switch {
	case len(rules.DefaultActiveServices.Production) > 0:
		plan.Expanded = rules.DefaultActiveServices.Production[0]
	case len(rules.DefaultActiveServices.PostProduction) > 0:
		plan.Expanded = rules.DefaultActiveServices.PostProduction[0]
	}
	return plan
}

// Run applies the plan's actions in order.
func (p CascadePlan) Run(r Reducer, t Tree) Tree {
	for _, a := range p.Actions {
		t = r.Reduce(t, a)
	}
	return t
}
