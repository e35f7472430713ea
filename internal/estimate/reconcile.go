package estimate

import "github.com/Simplici0/printbill/internal/catalog"

// Reconcile checks a section's catalog-backed values against the currently
// loaded catalogs. It returns at most one action:
//   - Settle, when the section was just activated;
//   - a single SourceReconcile update replacing every value absent from its
//     catalog with that catalog's first entry.
//
// Inactive and touched sections are skipped, as are catalogs that are still
// loading or empty.
func Reconcile(t Tree, code ServiceCode, cats Catalogs) (Action, bool) {
	work := t.Clone()
	sec := work.Section(code)
	if sec == nil || !sec.InUse() {
		return nil, false
	}
	if sec.bookkeeping().Settling {
		return Settle{Service: code}, true
	}
	if sec.Touched() || cats == nil {
		return nil, false
	}

	var fields []string
	for _, ref := range sec.choices() {
		entries, loading := cats.Entries(ref.catalog)
		if loading || len(entries) == 0 {
			continue
		}
		if _, ok := catalog.Find(entries, ref.choice.Value); ok {
			continue
		}
		*ref.choice = fromEntry(entries[0], ref.group)
		fields = appendUnique(fields, ref.field)
	}
	if len(fields) == 0 {
		return nil, false
	}
	return UpdateSection{Service: code, Patch: fieldPatch(sec, fields), Source: SourceReconcile}, true
}

// CatalogKeys lists every catalog the section's current values depend on.
func CatalogKeys(sec Section) []catalog.Key {
	seen := make(map[catalog.Key]bool)
	var out []catalog.Key
	for _, ref := range sec.choices() {
		if !seen[ref.catalog] {
			seen[ref.catalog] = true
			out = append(out, ref.catalog)
		}
	}
	return out
}

// Uses reports whether the section depends on the catalog key.
func Uses(sec Section, key catalog.Key) bool {
	for _, ref := range sec.choices() {
		if ref.catalog == key {
			return true
		}
	}
	return false
}

// ServiceCatalogs lists the catalogs a freshly seeded section of code reads.
func ServiceCatalogs(code ServiceCode) []catalog.Key {
	t := Reducer{}.Reduce(Empty(), UpdateSection{Service: code, Patch: Seeder{}.Payload(code, DieSize{}), Source: SourceSeed})
	sec := t.Section(code)
	if sec == nil {
		return nil
	}
	return CatalogKeys(sec)
}
