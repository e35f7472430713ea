package estimate

// ServiceCode identifies a production or post-production service.
type ServiceCode string

const (
	LP           ServiceCode = "LP"
	FS           ServiceCode = "FS"
	EMB          ServiceCode = "EMB"
	DIGI         ServiceCode = "DIGI"
	ScreenPrint  ServiceCode = "SCREEN PRINT"
	Notebook     ServiceCode = "NOTEBOOK"
	Lamination   ServiceCode = "LAMINATION"
	DC           ServiceCode = "DC"
	PostDC       ServiceCode = "POST DC"
	FoldAndPaste ServiceCode = "FOLD & PASTE"
	DSTPaste     ServiceCode = "DST PASTE"
	Magnet       ServiceCode = "MAGNET"
	EdgePainting ServiceCode = "EDGE PAINTING"
	Folding      ServiceCode = "FOLDING"
	Duplex       ServiceCode = "DUPLEX"
	QC           ServiceCode = "QC"
	Packing      ServiceCode = "PACKING"
	Misc         ServiceCode = "MISC"
)

// Stage splits services into the two lists a job type exposes.
type Stage int

const (
	Production Stage = iota
	PostProduction
)

func (s Stage) String() string {
	if s == Production {
		return "production"
	}
	return "postProduction"
}

// Service is a ServiceRegistry entry.
type Service struct {
	Code       ServiceCode `json:"code"`
	SectionKey string      `json:"sectionKey"`
	InUseField string      `json:"inUseField"`
	Group      string      `json:"group"`
	Stage      Stage       `json:"stage"`

	section func(*Tree) Section
}

var registry = []Service{
	{LP, "lpDetails", "isLPUsed", "Printing", Production, func(t *Tree) Section { return &t.LPDetails }},
	{FS, "fsDetails", "isFSUsed", "Printing", Production, func(t *Tree) Section { return &t.FSDetails }},
	{EMB, "embDetails", "isEMBUsed", "Printing", Production, func(t *Tree) Section { return &t.EMBDetails }},
	{DIGI, "digiDetails", "isDigiUsed", "Printing", Production, func(t *Tree) Section { return &t.DigiDetails }},
	{ScreenPrint, "screenPrinting", "isScreenPrintUsed", "Printing", Production, func(t *Tree) Section { return &t.ScreenPrinting }},
	{Notebook, "notebookDetails", "isNotebookUsed", "Binding", Production, func(t *Tree) Section { return &t.NotebookDetails }},
	{Lamination, "laminationDetails", "isLaminationUsed", "Finishing", Production, func(t *Tree) Section { return &t.LaminationDetails }},
	{DC, "dieCutting", "isDieCuttingUsed", "Cutting", PostProduction, func(t *Tree) Section { return &t.DieCutting }},
	{PostDC, "postDC", "isPostDCUsed", "Cutting", PostProduction, func(t *Tree) Section { return &t.PostDC }},
	{FoldAndPaste, "foldAndPaste", "isFoldAndPasteUsed", "Pasting", PostProduction, func(t *Tree) Section { return &t.FoldAndPaste }},
	{DSTPaste, "dstPaste", "isDstPasteUsed", "Pasting", PostProduction, func(t *Tree) Section { return &t.DSTPaste }},
	{Magnet, "magnet", "isMagnetUsed", "Finishing", PostProduction, func(t *Tree) Section { return &t.Magnet }},
	{EdgePainting, "edgePainting", "isEdgePaintingUsed", "Finishing", PostProduction, func(t *Tree) Section { return &t.EdgePainting }},
	{Folding, "folding", "isFoldingUsed", "Finishing", PostProduction, func(t *Tree) Section { return &t.Folding }},
	{Duplex, "duplex", "isDuplexUsed", "Finishing", PostProduction, func(t *Tree) Section { return &t.Duplex }},
	{QC, "qc", "isQCUsed", "Dispatch", PostProduction, func(t *Tree) Section { return &t.QC }},
	{Packing, "packing", "isPackingUsed", "Dispatch", PostProduction, func(t *Tree) Section { return &t.Packing }},
	{Misc, "misc", "isMiscUsed", "Dispatch", PostProduction, func(t *Tree) Section { return &t.Misc }},
}

var registryIndex = func() map[ServiceCode]int {
	idx := make(map[ServiceCode]int, len(registry))
	for i, svc := range registry {
		idx[svc.Code] = i
	}
	return idx
}()

// Services returns the registry in its canonical order.
func Services() []Service {
	out := make([]Service, len(registry))
	copy(out, registry)
	return out
}

// Lookup resolves a service code to its registry entry.
func Lookup(code ServiceCode) (Service, bool) {
	i, ok := registryIndex[code]
	if !ok {
		return Service{}, false
	}
	return registry[i], true
}

// LookupSection resolves a section key such as "lpDetails".
func LookupSection(key string) (Service, bool) {
	for _, svc := range registry {
		if svc.SectionKey == key {
			return svc, true
		}
	}
	return Service{}, false
}

// ParseServiceCode accepts a registered code.
func ParseServiceCode(s string) (ServiceCode, bool) {
	code := ServiceCode(s)
	_, ok := registryIndex[code]
	return code, ok
}

// MRGroup is the concatenation prefix for a service's MR type, e.g. "LP MR".
func MRGroup(code ServiceCode) string { return string(code) + " MR" }
