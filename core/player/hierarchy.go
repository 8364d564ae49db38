package player

import (
	"strings"

	"stemdeck/model"
)

// StandaloneTrackName is the one track name excluded from grouping.
const StandaloneTrackName = "mix"

// childSeparator joins a parent stem name and a child name, so
// "vocals_lead" is the lead child of the vocals stem.
const childSeparator = "_"

// Hierarchy is the grouped view of a track set: the standalone mix,
// parent stems, and split children keyed by parent name. It is a pure
// transform of the names, no timing or gain logic.
type Hierarchy struct {
	Standalone []model.Track          `json:"standalone"`
	Parents    []model.Track          `json:"parents"`
	Children   map[string][]ChildView `json:"children"`
}

// ChildView is a child track with its display name (the child name
// without the parent prefix).
type ChildView struct {
	model.Track
	DisplayName string `json:"displayName"`
}

// BuildHierarchy partitions tracks by naming convention: the literal
// "mix" is standalone, names without an underscore are parents, and
// anything else is a child of the prefix before its first underscore.
func BuildHierarchy(tracks []model.Track) Hierarchy {
	h := Hierarchy{
		Standalone: []model.Track{},
		Parents:    []model.Track{},
		Children:   make(map[string][]ChildView),
	}
	for _, t := range tracks {
		switch {
		case t.Name == StandaloneTrackName:
			h.Standalone = append(h.Standalone, t)
		case !strings.Contains(t.Name, childSeparator):
			h.Parents = append(h.Parents, t)
		default:
			parent, _ := ParentPrefix(t.Name)
			h.Children[parent] = append(h.Children[parent], ChildView{
				Track:       t,
				DisplayName: DisplayName(t.Name),
			})
		}
	}
	return h
}

// ParentPrefix returns the parent name encoded in a child track name,
// and whether the name is a child name at all.
func ParentPrefix(name string) (string, bool) {
	if name == StandaloneTrackName {
		return "", false
	}
	i := strings.Index(name, childSeparator)
	if i <= 0 {
		return "", false
	}
	return name[:i], true
}

// DisplayName strips the parent prefix and separator from a child
// name; parent and standalone names pass through unchanged.
func DisplayName(name string) string {
	if parent, ok := ParentPrefix(name); ok {
		return name[len(parent)+len(childSeparator):]
	}
	return name
}

// Splittable reports whether a track is eligible for secondary
// decomposition. Only the vocals and drums stems are.
func Splittable(name string) bool {
	return name == "vocals" || name == "drums"
}

// ChildTrackName builds the active-set name for a split child.
func ChildTrackName(parent, child string) string {
	return parent + childSeparator + child
}
