package estimate

import "strings"

// Empty returns the canonical empty tree: every section present and inactive.
func Empty() Tree {
	return Normalize(Tree{})
}

// Normalize restores the tree's structural invariants. Inactive sections take
// their cleared shape; active sections get arrays sized to their controlling
// field, Auto dimensions mirrored from the die size and Manual centimetres
// recomputed from inches.
func Normalize(t Tree) Tree {
	t = t.Clone()
	t.JobType = strings.TrimSpace(t.JobType)
	if t.JobType == "" {
		t.JobType = DefaultJobType
	}
	if t.OrderAndPaper.Quantity < 0 {
		t.OrderAndPaper.Quantity = 0
	}
	die := t.OrderAndPaper.DieSize
	auto := DeriveAuto(die)

	for _, svc := range registry {
		sec := svc.section(&t)
		if !sec.InUse() {
			sec.clear()
			continue
		}
		sec.resize(die)
		for _, sz := range sec.sizes() {
			switch *sz.mode {
			case SizeManual:
				*sz.dims = sz.dims.Manual()
			default:
				*sz.mode = SizeAuto
				*sz.dims = auto
			}
		}
	}
	return t
}
