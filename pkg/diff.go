package dirhashtree

import "sort"

// ChangeDetector compares a freshly built hash tree against a previously
// cached tree and yields the minimal set of directories requiring
// reprocessing. A parent is reported only when its own local hash changed or
// it gained a previously unknown subdirectory; a change confined to a
// pre-existing descendant subtree is reported at the descendant, never
// bubbled up. That narrowing is what makes the cache worth having.
type ChangeDetector struct {
	builder *TreeBuilder
}

// NewChangeDetector creates a detector that walks the live filesystem with
// the given builder
func NewChangeDetector(builder *TreeBuilder) *ChangeDetector {
	return &ChangeDetector{builder: builder}
}

// FindChangedDirectories re-walks rootPath (the walk is never served from the
// cache) and diffs the result against the cached tree for the same canonical
// root. Returned paths are absolute and sorted. An unknown root yields
// exactly the root path: everything under it is unconditionally stale, so
// there is nothing finer to report.
func (cd *ChangeDetector) FindChangedDirectories(rootPath string, cache HashCache) ([]string, error) {
	defer VerboseEnter()()

	current, err := cd.builder.ComputeDirectoryHashes(rootPath)
	if err != nil {
		return nil, err
	}

	changed := make(map[string]struct{})
	compareNodes(current, cache[current.Path], changed)

	result := make([]string, 0, len(changed))
	for path := range changed {
		result = append(result, path)
	}
	sort.Strings(result)

	if IsDebugEnabled("diff") {
		VerboseLog(3, "FindChangedDirectories: %s -> %d changed of tree rooted at %s", rootPath, len(result), current.Path)
	}

	return result, nil
}

// CompareTrees diffs a current tree against a cached one without touching the
// filesystem. prev may be nil (no baseline). Returned paths are sorted.
func CompareTrees(current, prev *DirHashNode) []string {
	changed := make(map[string]struct{})
	compareNodes(current, prev, changed)

	result := make([]string, 0, len(changed))
	for path := range changed {
		result = append(result, path)
	}
	sort.Strings(result)
	return result
}

func compareNodes(current, prev *DirHashNode, changed map[string]struct{}) {
	if prev == nil {
		// No baseline: the whole subtree is stale. One entry covers it; no
		// point enumerating descendants that have nothing to be diffed
		// against.
		changed[current.Path] = struct{}{}
		return
	}

	if current.RecursiveHash == prev.RecursiveHash {
		// Nothing anywhere under this directory changed
		return
	}

	if current.LocalHash != prev.LocalHash {
		changed[current.Path] = struct{}{}
	}

	for _, name := range current.sortedSubdirNames() {
		child := current.SubdirHashes[name]
		prevChild, existed := prev.SubdirHashes[name]
		if !existed {
			// Newly created directory: no baseline to diff into, so the
			// parent is reported and the new subtree is not descended.
			changed[current.Path] = struct{}{}
			continue
		}
		compareNodes(child, prevChild, changed)
	}

	// Directories present in prev but gone from disk are deliberately not
	// reported; there is nothing to reprocess for a deleted directory. They
	// drop out of the cache on the next refresh.
}
