package estimate

import "sort"

// DefaultJobType is used whenever a job type is unknown or empty.
const DefaultJobType = "Card"

// ServiceSets pairs a production list with a post-production list.
type ServiceSets struct {
	Production     []ServiceCode `json:"production"`
	PostProduction []ServiceCode `json:"postProduction"`
}

// JobTypeConfig lists the services visible for a job type and the subset that
// starts active.
type JobTypeConfig struct {
	ProductionServices     []ServiceCode `json:"productionServices"`
	PostProductionServices []ServiceCode `json:"postProductionServices"`
	DefaultActiveServices  ServiceSets   `json:"defaultActiveServices"`
}

var jobTypes = map[string]JobTypeConfig{
	"Card": {
		ProductionServices:     []ServiceCode{LP, FS, EMB, DIGI, ScreenPrint, Lamination},
		PostProductionServices: []ServiceCode{DC, PostDC, FoldAndPaste, DSTPaste, EdgePainting, Duplex, QC, Packing, Misc},
		DefaultActiveServices: ServiceSets{
			Production:     []ServiceCode{LP, DIGI},
			PostProduction: []ServiceCode{DC, DSTPaste, QC, Packing, Duplex},
		},
	},
	"Biz Card": {
		ProductionServices:     []ServiceCode{LP, FS, EMB, DIGI, ScreenPrint},
		PostProductionServices: []ServiceCode{DC, EdgePainting, Duplex, QC, Packing, Misc},
		DefaultActiveServices: ServiceSets{
			Production:     []ServiceCode{LP},
			PostProduction: []ServiceCode{DC, QC, Packing},
		},
	},
	"Envelope": {
		ProductionServices:     []ServiceCode{LP, FS, EMB, DIGI, ScreenPrint},
		PostProductionServices: []ServiceCode{DC, FoldAndPaste, DSTPaste, QC, Packing, Misc},
		DefaultActiveServices: ServiceSets{
			Production:     []ServiceCode{LP},
			PostProduction: []ServiceCode{DC, FoldAndPaste, QC, Packing},
		},
	},
	"Liner": {
		ProductionServices:     []ServiceCode{LP, FS, DIGI, ScreenPrint},
		PostProductionServices: []ServiceCode{DC, DSTPaste, QC, Packing, Misc},
		DefaultActiveServices: ServiceSets{
			Production:     []ServiceCode{DIGI},
			PostProduction: []ServiceCode{DC, QC, Packing},
		},
	},
	"Packaging": {
		ProductionServices:     []ServiceCode{LP, FS, EMB, DIGI, ScreenPrint, Lamination},
		PostProductionServices: []ServiceCode{DC, PostDC, FoldAndPaste, DSTPaste, Magnet, Folding, QC, Packing, Misc},
		DefaultActiveServices: ServiceSets{
			Production:     []ServiceCode{DIGI, Lamination},
			PostProduction: []ServiceCode{DC, FoldAndPaste, Magnet, QC, Packing},
		},
	},
	"Notebook": {
		ProductionServices:     []ServiceCode{Notebook, LP, FS, EMB, DIGI, ScreenPrint},
		PostProductionServices: []ServiceCode{EdgePainting, QC, Packing, Misc},
		DefaultActiveServices: ServiceSets{
			Production:     []ServiceCode{Notebook},
			PostProduction: []ServiceCode{QC, Packing},
		},
	},
	"Tag": {
		ProductionServices:     []ServiceCode{LP, FS, DIGI},
		PostProductionServices: []ServiceCode{DC, EdgePainting, Duplex, Folding, QC, Packing, Misc},
		DefaultActiveServices: ServiceSets{
			PostProduction: []ServiceCode{DC, QC, Packing},
		},
	},
	"Custom": {
		ProductionServices:     []ServiceCode{LP, FS, EMB, DIGI, ScreenPrint, Notebook, Lamination},
		PostProductionServices: []ServiceCode{DC, PostDC, FoldAndPaste, DSTPaste, Magnet, EdgePainting, Folding, Duplex, QC, Packing, Misc},
	},
}

// JobTypeRules resolves a job type to its configuration, falling back to the
// default job type for unknown names.
func JobTypeRules(jobType string) JobTypeConfig {
	if cfg, ok := jobTypes[jobType]; ok {
		return cfg
	}
	return jobTypes[DefaultJobType]
}

// KnownJobType reports whether jobType has its own rules.
func KnownJobType(jobType string) bool {
	_, ok := jobTypes[jobType]
	return ok
}

// JobTypes lists the configured job types, sorted.
func JobTypes() []string {
	out := make([]string, 0, len(jobTypes))
	for name := range jobTypes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Visible reports whether code is listed for the job type.
func (c JobTypeConfig) Visible(code ServiceCode) bool {
	for _, s := range c.ProductionServices {
		if s == code {
			return true
		}
	}
	for _, s := range c.PostProductionServices {
		if s == code {
			return true
		}
	}
	return false
}

// Defaults returns the default-active services, production first.
func (c JobTypeConfig) Defaults() []ServiceCode {
	out := make([]ServiceCode, 0, len(c.DefaultActiveServices.Production)+len(c.DefaultActiveServices.PostProduction))
	out = append(out, c.DefaultActiveServices.Production...)
	return append(out, c.DefaultActiveServices.PostProduction...)
}
