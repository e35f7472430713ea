package estimate

import (
	"encoding/json"
	"slices"

	"github.com/Simplici0/printbill/internal/catalog"
)

// Size modes for plate/block dimensions.
const (
	SizeAuto   = "Auto"
	SizeManual = "Manual"
)

// DimensionPair holds a record's dimensions in inches (as entered or mirrored
// from the die size) and in centimetres (always derived from the inches).
type DimensionPair struct {
	LengthInInches  string `json:"lengthInInches"`
	BreadthInInches string `json:"breadthInInches"`
	Length          string `json:"length"`
	Breadth         string `json:"breadth"`
}

// DieSize is the shared die size in inches.
type DieSize struct {
	Length  string `json:"length"`
	Breadth string `json:"breadth"`
}

// Choice is a catalog-backed selection: the display value plus the derived
// concatenated form used for pricing.
type Choice struct {
	Value        string `json:"value"`
	Concatenated string `json:"concatenated,omitempty"`
}

// Client is the customer the estimate is prepared for.
type Client struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ClientType string `json:"clientType"`
}

type OrderAndPaper struct {
	ProjectName  string  `json:"projectName"`
	Quantity     int     `json:"quantity"`
	DieSize      DieSize `json:"dieSize"`
	DieCode      string  `json:"dieCode"`
	PaperName    string  `json:"paperName"`
	DeliveryDate string  `json:"deliveryDate"`
	Notes        string  `json:"notes"`
}

// Bookkeeping is the reconciliation state every section carries alongside its
// parameters.
type Bookkeeping struct {
	TouchedFields []string `json:"touchedFields,omitempty"`
	Settling      bool     `json:"settling,omitempty"`
}

func (b *Bookkeeping) bookkeeping() *Bookkeeping { return b }

// Touched reports whether the user changed any catalog-backed field since the
// section was activated.
func (b *Bookkeeping) Touched() bool { return len(b.TouchedFields) > 0 }

func (b *Bookkeeping) touch(field string) {
	if !slices.Contains(b.TouchedFields, field) {
		b.TouchedFields = append(b.TouchedFields, field)
	}
}

// Section is implemented by every service section of the tree.
type Section interface {
	InUse() bool
	Touched() bool
	bookkeeping() *Bookkeeping
	choices() []choiceRef
	sizes() []sizeRef
	resize(d DieSize)
	clear()
}

// choiceRef points at a catalog-backed field inside a section.
type choiceRef struct {
	field   string // top-level JSON field of the section holding the choice
	name    string // JSON name of the choice itself
	path    string // unique path within the section, e.g. colorDetails[1].mrType
	catalog catalog.Key
	group   string // concatenation group; empty when the field has no derived form
	choice  *Choice
}

type sizeRef struct {
	field string
	path  string
	mode  *string
	dims  *DimensionPair
}

type LPColor struct {
	PlateSizeType   string        `json:"plateSizeType"`
	PlateDimensions DimensionPair `json:"plateDimensions"`
	PantoneCode     string        `json:"pantoneCode"`
	PlateType       Choice        `json:"plateType"`
	MRType          Choice        `json:"mrType"`
}

type LPDetails struct {
	IsLPUsed     bool      `json:"isLPUsed"`
	NoOfColors   int       `json:"noOfColors"`
	ColorDetails []LPColor `json:"colorDetails"`
	Bookkeeping
}

type Foil struct {
	BlockSizeType   string        `json:"blockSizeType"`
	BlockDimensions DimensionPair `json:"blockDimensions"`
	FoilType        Choice        `json:"foilType"`
	BlockType       Choice        `json:"blockType"`
	MRType          Choice        `json:"mrType"`
}

type FSDetails struct {
	IsFSUsed    bool   `json:"isFSUsed"`
	FSType      string `json:"fsType"`
	FoilDetails []Foil `json:"foilDetails"`
	Bookkeeping
}

type EMBDetails struct {
	IsEMBUsed       bool          `json:"isEMBUsed"`
	PlateSizeType   string        `json:"plateSizeType"`
	PlateDimensions DimensionPair `json:"plateDimensions"`
	PlateTypeMale   Choice        `json:"plateTypeMale"`
	PlateTypeFemale Choice        `json:"plateTypeFemale"`
	EMBMR           Choice        `json:"embMR"`
	Bookkeeping
}

type DigiDetails struct {
	IsDigiUsed bool   `json:"isDigiUsed"`
	DigiMR     Choice `json:"digiMR"`
	SheetSize  string `json:"sheetSize"`
	Bookkeeping
}

type ScreenPrintDetails struct {
	IsScreenPrintUsed bool   `json:"isScreenPrintUsed"`
	NoOfColors        int    `json:"noOfColors"`
	ScreenPrintMR     Choice `json:"screenPrintMR"`
	Bookkeeping
}

type NotebookDetails struct {
	IsNotebookUsed bool   `json:"isNotebookUsed"`
	Orientation    string `json:"orientation"`
	NumberOfPages  int    `json:"numberOfPages"`
	BindingType    string `json:"bindingType"`
	PaperName      Choice `json:"paperName"`
	Bookkeeping
}

type LaminationDetails struct {
	IsLaminationUsed bool   `json:"isLaminationUsed"`
	LaminationType   Choice `json:"laminationType"`
	LaminationMR     Choice `json:"laminationMR"`
	Bookkeeping
}

type DieCuttingDetails struct {
	IsDieCuttingUsed  bool          `json:"isDieCuttingUsed"`
	DCPlateSizeType   string        `json:"dcPlateSizeType"`
	DCPlateDimensions DimensionPair `json:"dcPlateDimensions"`
	DCMR              Choice        `json:"dcMR"`
	PDC               bool          `json:"pdc"`
	Bookkeeping
}

type PostDCDetails struct {
	IsPostDCUsed       bool          `json:"isPostDCUsed"`
	PDCPlateSizeType   string        `json:"pdcPlateSizeType"`
	PDCPlateDimensions DimensionPair `json:"pdcPlateDimensions"`
	PDCMR              Choice        `json:"pdcMR"`
	Bookkeeping
}

type FoldAndPasteDetails struct {
	IsFoldAndPasteUsed bool   `json:"isFoldAndPasteUsed"`
	DSTMaterial        Choice `json:"dstMaterial"`
	FoldAndPasteMR     Choice `json:"foldAndPasteMR"`
	Bookkeeping
}

type DSTPasteDetails struct {
	IsDstPasteUsed bool   `json:"isDstPasteUsed"`
	DSTMaterial    Choice `json:"dstMaterial"`
	DSTType        string `json:"dstType"`
	Bookkeeping
}

type MagnetDetails struct {
	IsMagnetUsed   bool   `json:"isMagnetUsed"`
	MagnetMaterial Choice `json:"magnetMaterial"`
	NoOfMagnets    int    `json:"noOfMagnets"`
	Bookkeeping
}

type EdgePaintingDetails struct {
	IsEdgePaintingUsed bool   `json:"isEdgePaintingUsed"`
	EdgeColor          string `json:"edgeColor"`
	NoOfSides          int    `json:"noOfSides"`
	Bookkeeping
}

type FoldingDetails struct {
	IsFoldingUsed bool   `json:"isFoldingUsed"`
	NoOfFolds     int    `json:"noOfFolds"`
	FoldingType   string `json:"foldingType"`
	Bookkeeping
}

type DuplexDetails struct {
	IsDuplexUsed bool   `json:"isDuplexUsed"`
	PaperName    Choice `json:"paperName"`
	NoOfSheets   int    `json:"noOfSheets"`
	Bookkeeping
}

type QCDetails struct {
	IsQCUsed bool `json:"isQCUsed"`
	Bookkeeping
}

type PackingDetails struct {
	IsPackingUsed bool   `json:"isPackingUsed"`
	PackingType   string `json:"packingType"`
	Bookkeeping
}

type MiscDetails struct {
	IsMiscUsed  bool   `json:"isMiscUsed"`
	Description string `json:"description"`
	Bookkeeping
}

// Tree is the whole estimate configuration. Every registered service section
// is always present; inactive sections hold their cleared shape.
type Tree struct {
	Client        Client        `json:"client"`
	VersionID     string        `json:"versionId"`
	JobType       string        `json:"jobType"`
	OrderAndPaper OrderAndPaper `json:"orderAndPaper"`

	LPDetails         LPDetails           `json:"lpDetails"`
	FSDetails         FSDetails           `json:"fsDetails"`
	EMBDetails        EMBDetails          `json:"embDetails"`
	DigiDetails       DigiDetails         `json:"digiDetails"`
	ScreenPrinting    ScreenPrintDetails  `json:"screenPrinting"`
	NotebookDetails   NotebookDetails     `json:"notebookDetails"`
	LaminationDetails LaminationDetails   `json:"laminationDetails"`
	DieCutting        DieCuttingDetails   `json:"dieCutting"`
	PostDC            PostDCDetails       `json:"postDC"`
	FoldAndPaste      FoldAndPasteDetails `json:"foldAndPaste"`
	DSTPaste          DSTPasteDetails     `json:"dstPaste"`
	Magnet            MagnetDetails       `json:"magnet"`
	EdgePainting      EdgePaintingDetails `json:"edgePainting"`
	Folding           FoldingDetails      `json:"folding"`
	Duplex            DuplexDetails       `json:"duplex"`
	QC                QCDetails           `json:"qc"`
	Packing           PackingDetails      `json:"packing"`
	Misc              MiscDetails         `json:"misc"`
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	b, err := json.Marshal(t)
	if err != nil {
		// Every field is a plain JSON type; marshalling cannot fail.
		panic(err)
	}
	var out Tree
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

// Section returns the live section for code, or nil for an unknown code.
func (t *Tree) Section(code ServiceCode) Section {
	svc, ok := Lookup(code)
	if !ok {
		return nil
	}
	return svc.section(t)
}

// Active lists the codes of every active service in registry order.
func (t *Tree) Active() []ServiceCode {
	var out []ServiceCode
	for _, svc := range registry {
		if svc.section(t).InUse() {
			out = append(out, svc.Code)
		}
	}
	return out
}

func (s *LPDetails) InUse() bool           { return s.IsLPUsed }
func (s *FSDetails) InUse() bool           { return s.IsFSUsed }
func (s *EMBDetails) InUse() bool          { return s.IsEMBUsed }
func (s *DigiDetails) InUse() bool         { return s.IsDigiUsed }
func (s *ScreenPrintDetails) InUse() bool  { return s.IsScreenPrintUsed }
func (s *NotebookDetails) InUse() bool     { return s.IsNotebookUsed }
func (s *LaminationDetails) InUse() bool   { return s.IsLaminationUsed }
func (s *DieCuttingDetails) InUse() bool   { return s.IsDieCuttingUsed }
func (s *PostDCDetails) InUse() bool       { return s.IsPostDCUsed }
func (s *FoldAndPasteDetails) InUse() bool { return s.IsFoldAndPasteUsed }
func (s *DSTPasteDetails) InUse() bool     { return s.IsDstPasteUsed }
func (s *MagnetDetails) InUse() bool       { return s.IsMagnetUsed }
func (s *EdgePaintingDetails) InUse() bool { return s.IsEdgePaintingUsed }
func (s *FoldingDetails) InUse() bool      { return s.IsFoldingUsed }
func (s *DuplexDetails) InUse() bool       { return s.IsDuplexUsed }
func (s *QCDetails) InUse() bool           { return s.IsQCUsed }
func (s *PackingDetails) InUse() bool      { return s.IsPackingUsed }
func (s *MiscDetails) InUse() bool         { return s.IsMiscUsed }

func (s *LPDetails) clear()           { *s = LPDetails{ColorDetails: []LPColor{}} }
func (s *FSDetails) clear()           { *s = FSDetails{FoilDetails: []Foil{}} }
func (s *EMBDetails) clear()          { *s = EMBDetails{} }
func (s *DigiDetails) clear()         { *s = DigiDetails{} }
func (s *ScreenPrintDetails) clear()  { *s = ScreenPrintDetails{} }
func (s *NotebookDetails) clear()     { *s = NotebookDetails{} }
func (s *LaminationDetails) clear()   { *s = LaminationDetails{} }
func (s *DieCuttingDetails) clear()   { *s = DieCuttingDetails{} }
func (s *PostDCDetails) clear()       { *s = PostDCDetails{} }
func (s *FoldAndPasteDetails) clear() { *s = FoldAndPasteDetails{} }
func (s *DSTPasteDetails) clear()     { *s = DSTPasteDetails{} }
func (s *MagnetDetails) clear()       { *s = MagnetDetails{} }
func (s *EdgePaintingDetails) clear() { *s = EdgePaintingDetails{} }
func (s *FoldingDetails) clear()      { *s = FoldingDetails{} }
func (s *DuplexDetails) clear()       { *s = DuplexDetails{} }
func (s *QCDetails) clear()           { *s = QCDetails{} }
func (s *PackingDetails) clear()      { *s = PackingDetails{} }
func (s *MiscDetails) clear()         { *s = MiscDetails{} }
