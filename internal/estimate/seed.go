package estimate

import (
	"encoding/json"

	"github.com/Simplici0/printbill/internal/catalog"
)

// Catalogs is the read side of the catalog cache as the estimate engine sees
// it: the current entries for a key plus whether a load is still in flight.
// Entries never blocks.
type Catalogs interface {
	Entries(key catalog.Key) (entries []catalog.Entry, loading bool)
}

var fallbacks = map[catalog.Key]string{
	catalog.Materials(MaterialPlate):      "Polymer Plate",
	catalog.Materials(MaterialFoil):       "Gold MTS 220",
	catalog.Materials(MaterialBlock):      "Magnesium Block 3MM",
	catalog.Materials(MaterialLamination): "Matt BOPP",
	catalog.Materials(MaterialMagnet):     "Round Magnet 12mm",
	catalog.DSTMaterials():                "DST 6mm",
	catalog.Papers():                      "Art Card 300 GSM",
}

// FallbackValue is the literal used when a catalog has nothing to offer.
func FallbackValue(key catalog.Key) string {
	if key.Kind == catalog.KindMRTypes {
		return "SIMPLE"
	}
	return fallbacks[key]
}

// Seeder builds activation payloads from the first entry of each relevant
// catalog, falling back to literals while catalogs are missing or empty.
type Seeder struct {
	Catalogs Catalogs
}

func (s Seeder) choice(key catalog.Key, group string) Choice {
	if s.Catalogs != nil {
		if entries, _ := s.Catalogs.Entries(key); len(entries) > 0 {
			return fromEntry(entries[0], group)
		}
	}
	return fallbackChoice(key, group)
}

func fromEntry(e catalog.Entry, group string) Choice {
	c := Choice{Value: e.Value, Concatenated: e.Concatenated}
	if c.Concatenated == "" {
		c.Concatenated = template(group, e.Value)
	}
	return c
}

func (s Seeder) lpColor(d DieSize) LPColor {
	c := newLPColor(d)
	c.PlateType = s.choice(catalog.Materials(MaterialPlate), "")
	c.MRType = s.choice(mr(LP), MRGroup(LP))
	return c
}

func (s Seeder) foil(d DieSize) Foil {
	f := newFoil(d)
	f.FoilType = s.choice(catalog.Materials(MaterialFoil), "")
	f.BlockType = s.choice(catalog.Materials(MaterialBlock), "")
	f.MRType = s.choice(mr(FS), MRGroup(FS))
	return f
}

// Payload returns the activation payload for code, including the in-use flag.
func (s Seeder) Payload(code ServiceCode, d DieSize) map[string]any {
	var sec any
	switch code {
	case LP:
		sec = LPDetails{IsLPUsed: true, NoOfColors: 1, ColorDetails: []LPColor{s.lpColor(d)}}
	case FS:
		sec = FSDetails{IsFSUsed: true, FSType: "FS1", FoilDetails: []Foil{s.foil(d)}}
	case EMB:
		sec = EMBDetails{
			IsEMBUsed:       true,
			PlateSizeType:   SizeAuto,
			PlateDimensions: DeriveAuto(d),
			PlateTypeMale:   s.choice(catalog.Materials(MaterialPlate), ""),
			PlateTypeFemale: s.choice(catalog.Materials(MaterialPlate), ""),
			EMBMR:           s.choice(mr(EMB), MRGroup(EMB)),
		}
	case DIGI:
		sec = DigiDetails{IsDigiUsed: true, DigiMR: s.choice(mr(DIGI), MRGroup(DIGI)), SheetSize: "12x18"}
	case ScreenPrint:
		sec = ScreenPrintDetails{IsScreenPrintUsed: true, NoOfColors: 1, ScreenPrintMR: s.choice(mr(ScreenPrint), MRGroup(ScreenPrint))}
	case Notebook:
		sec = NotebookDetails{
			IsNotebookUsed: true,
			Orientation:    "Portrait",
			NumberOfPages:  100,
			BindingType:    "Wiro",
			PaperName:      s.choice(catalog.Papers(), ""),
		}
	case Lamination:
		sec = LaminationDetails{
			IsLaminationUsed: true,
			LaminationType:   s.choice(catalog.Materials(MaterialLamination), ""),
			LaminationMR:     s.choice(mr(Lamination), MRGroup(Lamination)),
		}
	case DC:
		sec = DieCuttingDetails{
			IsDieCuttingUsed:  true,
			DCPlateSizeType:   SizeAuto,
			DCPlateDimensions: DeriveAuto(d),
			DCMR:              s.choice(mr(DC), MRGroup(DC)),
		}
	case PostDC:
		sec = PostDCDetails{
			IsPostDCUsed:       true,
			PDCPlateSizeType:   SizeAuto,
			PDCPlateDimensions: DeriveAuto(d),
			PDCMR:              s.choice(mr(PostDC), MRGroup(PostDC)),
		}
	case FoldAndPaste:
		sec = FoldAndPasteDetails{
			IsFoldAndPasteUsed: true,
			DSTMaterial:        s.choice(catalog.DSTMaterials(), ""),
			FoldAndPasteMR:     s.choice(mr(FoldAndPaste), MRGroup(FoldAndPaste)),
		}
	case DSTPaste:
		sec = DSTPasteDetails{IsDstPasteUsed: true, DSTMaterial: s.choice(catalog.DSTMaterials(), ""), DSTType: "Single Side"}
	case Magnet:
		sec = MagnetDetails{IsMagnetUsed: true, MagnetMaterial: s.choice(catalog.Materials(MaterialMagnet), ""), NoOfMagnets: 1}
	case EdgePainting:
		sec = EdgePaintingDetails{IsEdgePaintingUsed: true, NoOfSides: 4}
	case Folding:
		sec = FoldingDetails{IsFoldingUsed: true, NoOfFolds: 1}
	case Duplex:
		sec = DuplexDetails{IsDuplexUsed: true, PaperName: s.choice(catalog.Papers(), ""), NoOfSheets: 2}
	case QC:
		sec = QCDetails{IsQCUsed: true}
	case Packing:
		sec = PackingDetails{IsPackingUsed: true, PackingType: "Standard"}
	case Misc:
		sec = MiscDetails{IsMiscUsed: true}
	default:
		return nil
	}
	return payload(sec)
}

// Padding seeds the records an array resize added beyond prevLen, returning
// false when the section has no new records.
func (s Seeder) Padding(t Tree, code ServiceCode, prevLen int) (Action, bool) {
	work := t.Clone()
	sec := work.Section(code)
	if sec == nil || !sec.InUse() || prevLen < 0 {
		return nil, false
	}
	die := work.OrderAndPaper.DieSize
	switch v := sec.(type) {
	case *LPDetails:
		if len(v.ColorDetails) <= prevLen {
			return nil, false
		}
		for i := prevLen; i < len(v.ColorDetails); i++ {
			v.ColorDetails[i] = s.lpColor(die)
		}
		return UpdateSection{Service: code, Patch: fieldPatch(sec, []string{"colorDetails"}), Source: SourceSeed}, true
	case *FSDetails:
		if len(v.FoilDetails) <= prevLen {
			return nil, false
		}
		for i := prevLen; i < len(v.FoilDetails); i++ {
			v.FoilDetails[i] = s.foil(die)
		}
		return UpdateSection{Service: code, Patch: fieldPatch(sec, []string{"foilDetails"}), Source: SourceSeed}, true
	}
	return nil, false
}

func payload(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, raw := range m {
		if k == "touchedFields" || k == "settling" {
			continue
		}
		out[k] = raw
	}
	return out
}
