package estimate

// Action is one of the reducer's closed set of actions.
type Action interface {
	action()
}

// Source records who produced a section update. Only user updates mark
// fields as touched.
type Source int

const (
	SourceUser Source = iota
	SourceCascade
	SourceSeed
	SourceReconcile
)

func (s Source) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourceCascade:
		return "cascade"
	case SourceSeed:
		return "seed"
	case SourceReconcile:
		return "reconcile"
	}
	return "unknown"
}

// Reset replaces the tree with the canonical empty tree.
type Reset struct{}

// PartialReset clears every service section but keeps client, version, job
// type and order metadata.
type PartialReset struct{}

// InitializeForm hydrates an edit session from a persisted tree.
type InitializeForm struct {
	Tree Tree
}

type SetClient struct {
	Client Client
}

type SetVersion struct {
	VersionID string
}

type SetJobType struct {
	JobType string
}

// UpdateOrderAndPaper shallow-merges Patch into orderAndPaper.
type UpdateOrderAndPaper struct {
	Patch map[string]any
}

// UpdateSection shallow-merges Patch into the section of Service. Patch keys
// are the section's JSON field names; values are anything encoding/json can
// marshal, including json.RawMessage.
type UpdateSection struct {
	Service ServiceCode
	Patch   map[string]any
	Source  Source
}

// Settle consumes a section's first reconciliation check after activation.
type Settle struct {
	Service ServiceCode
}

func (Reset) action()               {}
func (PartialReset) action()        {}
func (InitializeForm) action()      {}
func (SetClient) action()           {}
func (SetVersion) action()          {}
func (SetJobType) action()          {}
func (UpdateOrderAndPaper) action() {}
func (UpdateSection) action()       {}
func (Settle) action()              {}

// Toggle builds a user update that flips a service's in-use flag.
func Toggle(code ServiceCode, on bool, payload map[string]any) UpdateSection {
	svc, _ := Lookup(code)
	patch := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		patch[k] = v
	}
	patch[svc.InUseField] = on
	return UpdateSection{Service: code, Patch: patch, Source: SourceUser}
}
