package estimate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Simplici0/printbill/internal/catalog"
)

// Material types used as catalog names.
const (
	MaterialPlate      = "Plate"
	MaterialFoil       = "Foil"
	MaterialBlock      = "Block"
	MaterialLamination = "Lamination"
	MaterialMagnet     = "Magnet"
)

const (
	maxLPColors = 10
	maxFoils    = 5
)

func mr(code ServiceCode) catalog.Key { return catalog.MRTypes(string(code)) }

func one(field string, key catalog.Key, group string, c *Choice) choiceRef {
	return choiceRef{field: field, name: field, path: field, catalog: key, group: group, choice: c}
}

func nested(field string, i int, name string, key catalog.Key, group string, c *Choice) choiceRef {
	return choiceRef{
		field:   field,
		name:    name,
		path:    fmt.Sprintf("%s[%d].%s", field, i, name),
		catalog: key,
		group:   group,
		choice:  c,
	}
}

func (s *LPDetails) choices() []choiceRef {
	out := make([]choiceRef, 0, 2*len(s.ColorDetails))
	for i := range s.ColorDetails {
		c := &s.ColorDetails[i]
		out = append(out,
			nested("colorDetails", i, "plateType", catalog.Materials(MaterialPlate), "", &c.PlateType),
			nested("colorDetails", i, "mrType", mr(LP), MRGroup(LP), &c.MRType),
		)
	}
	return out
}

func (s *FSDetails) choices() []choiceRef {
	out := make([]choiceRef, 0, 3*len(s.FoilDetails))
	for i := range s.FoilDetails {
		f := &s.FoilDetails[i]
		out = append(out,
			nested("foilDetails", i, "foilType", catalog.Materials(MaterialFoil), "", &f.FoilType),
			nested("foilDetails", i, "blockType", catalog.Materials(MaterialBlock), "", &f.BlockType),
			nested("foilDetails", i, "mrType", mr(FS), MRGroup(FS), &f.MRType),
		)
	}
	return out
}

func (s *EMBDetails) choices() []choiceRef {
	return []choiceRef{
		one("plateTypeMale", catalog.Materials(MaterialPlate), "", &s.PlateTypeMale),
		one("plateTypeFemale", catalog.Materials(MaterialPlate), "", &s.PlateTypeFemale),
		one("embMR", mr(EMB), MRGroup(EMB), &s.EMBMR),
	}
}

func (s *DigiDetails) choices() []choiceRef {
	return []choiceRef{one("digiMR", mr(DIGI), MRGroup(DIGI), &s.DigiMR)}
}

func (s *ScreenPrintDetails) choices() []choiceRef {
	return []choiceRef{one("screenPrintMR", mr(ScreenPrint), MRGroup(ScreenPrint), &s.ScreenPrintMR)}
}

func (s *NotebookDetails) choices() []choiceRef {
	return []choiceRef{one("paperName", catalog.Papers(), "", &s.PaperName)}
}

func (s *LaminationDetails) choices() []choiceRef {
	return []choiceRef{
		one("laminationType", catalog.Materials(MaterialLamination), "", &s.LaminationType),
		one("laminationMR", mr(Lamination), MRGroup(Lamination), &s.LaminationMR),
	}
}

func (s *DieCuttingDetails) choices() []choiceRef {
	return []choiceRef{one("dcMR", mr(DC), MRGroup(DC), &s.DCMR)}
}

func (s *PostDCDetails) choices() []choiceRef {
	return []choiceRef{one("pdcMR", mr(PostDC), MRGroup(PostDC), &s.PDCMR)}
}

func (s *FoldAndPasteDetails) choices() []choiceRef {
	return []choiceRef{
		one("dstMaterial", catalog.DSTMaterials(), "", &s.DSTMaterial),
		one("foldAndPasteMR", mr(FoldAndPaste), MRGroup(FoldAndPaste), &s.FoldAndPasteMR),
	}
}

func (s *DSTPasteDetails) choices() []choiceRef {
	return []choiceRef{one("dstMaterial", catalog.DSTMaterials(), "", &s.DSTMaterial)}
}

func (s *MagnetDetails) choices() []choiceRef {
	return []choiceRef{one("magnetMaterial", catalog.Materials(MaterialMagnet), "", &s.MagnetMaterial)}
}

func (s *DuplexDetails) choices() []choiceRef {
	return []choiceRef{one("paperName", catalog.Papers(), "", &s.PaperName)}
}

func (s *EdgePaintingDetails) choices() []choiceRef { return nil }
func (s *FoldingDetails) choices() []choiceRef      { return nil }
func (s *QCDetails) choices() []choiceRef           { return nil }
func (s *PackingDetails) choices() []choiceRef      { return nil }
func (s *MiscDetails) choices() []choiceRef         { return nil }

func (s *LPDetails) sizes() []sizeRef {
	out := make([]sizeRef, 0, len(s.ColorDetails))
	for i := range s.ColorDetails {
		c := &s.ColorDetails[i]
		out = append(out, sizeRef{
			field: "colorDetails",
			path:  fmt.Sprintf("colorDetails[%d].plateDimensions", i),
			mode:  &c.PlateSizeType,
			dims:  &c.PlateDimensions,
		})
	}
	return out
}

func (s *FSDetails) sizes() []sizeRef {
	out := make([]sizeRef, 0, len(s.FoilDetails))
	for i := range s.FoilDetails {
		f := &s.FoilDetails[i]
		out = append(out, sizeRef{
			field: "foilDetails",
			path:  fmt.Sprintf("foilDetails[%d].blockDimensions", i),
			mode:  &f.BlockSizeType,
			dims:  &f.BlockDimensions,
		})
	}
	return out
}

func (s *EMBDetails) sizes() []sizeRef {
	return []sizeRef{{field: "plateDimensions", path: "plateDimensions", mode: &s.PlateSizeType, dims: &s.PlateDimensions}}
}

func (s *DieCuttingDetails) sizes() []sizeRef {
	return []sizeRef{{field: "dcPlateDimensions", path: "dcPlateDimensions", mode: &s.DCPlateSizeType, dims: &s.DCPlateDimensions}}
}

func (s *PostDCDetails) sizes() []sizeRef {
	return []sizeRef{{field: "pdcPlateDimensions", path: "pdcPlateDimensions", mode: &s.PDCPlateSizeType, dims: &s.PDCPlateDimensions}}
}

func (s *DigiDetails) sizes() []sizeRef         { return nil }
func (s *ScreenPrintDetails) sizes() []sizeRef  { return nil }
func (s *NotebookDetails) sizes() []sizeRef     { return nil }
func (s *LaminationDetails) sizes() []sizeRef   { return nil }
func (s *FoldAndPasteDetails) sizes() []sizeRef { return nil }
func (s *DSTPasteDetails) sizes() []sizeRef     { return nil }
func (s *MagnetDetails) sizes() []sizeRef       { return nil }
func (s *EdgePaintingDetails) sizes() []sizeRef { return nil }
func (s *FoldingDetails) sizes() []sizeRef      { return nil }
func (s *DuplexDetails) sizes() []sizeRef       { return nil }
func (s *QCDetails) sizes() []sizeRef           { return nil }
func (s *PackingDetails) sizes() []sizeRef      { return nil }
func (s *MiscDetails) sizes() []sizeRef         { return nil }

// FoilCount parses "FS1".."FS5" into the number of foil records.
func FoilCount(fsType string) (int, bool) {
	digits, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(fsType)), "FS")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > maxFoils {
		return 0, false
	}
	return n, true
}

func clampColors(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxLPColors {
		return maxLPColors
	}
	return n
}

func fallbackChoice(key catalog.Key, group string) Choice {
	v := FallbackValue(key)
	return Choice{Value: v, Concatenated: template(group, v)}
}

func template(group, value string) string {
	if group == "" || value == "" {
		return ""
	}
	return group + " " + value
}

func newLPColor(d DieSize) LPColor {
	return LPColor{
		PlateSizeType:   SizeAuto,
		PlateDimensions: DeriveAuto(d),
		PlateType:       fallbackChoice(catalog.Materials(MaterialPlate), ""),
		MRType:          fallbackChoice(mr(LP), MRGroup(LP)),
	}
}

func newFoil(d DieSize) Foil {
	return Foil{
		BlockSizeType:   SizeAuto,
		BlockDimensions: DeriveAuto(d),
		FoilType:        fallbackChoice(catalog.Materials(MaterialFoil), ""),
		BlockType:       fallbackChoice(catalog.Materials(MaterialBlock), ""),
		MRType:          fallbackChoice(mr(FS), MRGroup(FS)),
	}
}

func (s *LPDetails) resize(d DieSize) {
	s.NoOfColors = clampColors(s.NoOfColors)
	if len(s.ColorDetails) > s.NoOfColors {
		s.ColorDetails = s.ColorDetails[:s.NoOfColors]
	}
	for len(s.ColorDetails) < s.NoOfColors {
		s.ColorDetails = append(s.ColorDetails, newLPColor(d))
	}
}

func (s *FSDetails) resize(d DieSize) {
	n, ok := FoilCount(s.FSType)
	if !ok {
		s.FSType, n = "FS1", 1
	}
	if len(s.FoilDetails) > n {
		s.FoilDetails = s.FoilDetails[:n]
	}
	for len(s.FoilDetails) < n {
		s.FoilDetails = append(s.FoilDetails, newFoil(d))
	}
}

func (s *EMBDetails) resize(DieSize)          {}
func (s *DigiDetails) resize(DieSize)         {}
func (s *ScreenPrintDetails) resize(DieSize)  {}
func (s *NotebookDetails) resize(DieSize)     {}
func (s *LaminationDetails) resize(DieSize)   {}
func (s *DieCuttingDetails) resize(DieSize)   {}
func (s *PostDCDetails) resize(DieSize)       {}
func (s *FoldAndPasteDetails) resize(DieSize) {}
func (s *DSTPasteDetails) resize(DieSize)     {}
func (s *MagnetDetails) resize(DieSize)       {}
func (s *EdgePaintingDetails) resize(DieSize) {}
func (s *FoldingDetails) resize(DieSize)      {}
func (s *DuplexDetails) resize(DieSize)       {}
func (s *QCDetails) resize(DieSize)           {}
func (s *PackingDetails) resize(DieSize)      {}
func (s *MiscDetails) resize(DieSize)         {}

// RecordCount returns the length of the section's repeated-record array, or
// -1 for sections without one.
func RecordCount(sec Section) int {
	switch s := sec.(type) {
	case *LPDetails:
		return len(s.ColorDetails)
	case *FSDetails:
		return len(s.FoilDetails)
	}
	return -1
}

// FieldChoice is a catalog-backed value of a section.
type FieldChoice struct {
	Path    string
	Catalog catalog.Key
	Choice  Choice
}

// Choices lists the section's catalog-backed values in field order.
func Choices(sec Section) []FieldChoice {
	refs := sec.choices()
	out := make([]FieldChoice, 0, len(refs))
	for _, ref := range refs {
		out = append(out, FieldChoice{Path: ref.path, Catalog: ref.catalog, Choice: *ref.choice})
	}
	return out
}
