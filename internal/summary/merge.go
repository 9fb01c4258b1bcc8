package summary

// Merge combines partial structures field by field: bullets are concatenated
// in partial order, deduplicated by normalized text and capped by first
// appearance. It also returns the deduplicated volume before capping, which
// callers compare against their reduction capacity.
// Merging a single partial returns it unchanged.
func Merge(partials []Structure, bulletCap int) (Structure, int) {
	if len(partials) == 1 {
		return partials[0], partials[0].Volume()
	}

	var out Structure
	volume := 0
	for _, name := range FieldNames {
		var all []string
		for _, p := range partials {
			all = append(all, p.Get(name)...)
		}
		unique := dedup(all)
		for _, b := range unique {
			volume += len([]rune(b))
		}
		*out.Field(name) = capList(unique, bulletCap)
	}
	return out, volume
}
