package normalize

import (
	"github.com/trashdetect/perception/internal/config"
	"github.com/trashdetect/perception/internal/labels"
)

// SourceFromConfig builds a Source from its JSON description.
func SourceFromConfig(c config.CollectionConfig) (Source, error) {
	m, err := c.NativeCategoryMap()
	if err != nil {
		return Source{}, err
	}
	src := Source{
		Name:           c.Name,
		Kind:           Kind(c.Kind),
		Root:           c.Root,
		Annotations:    c.GetAnnotations(),
		Prefix:         c.GetPrefix(),
		AllowNativeIDs: c.GetAllowNativeIDs(),
		Clamp:          c.GetClamp(),
		SkipExisting:   c.GetSkipExisting(),
	}
	if m != nil {
		src.CategoryMap = labels.CategoryMap(m)
	}
	return src, nil
}

// RunAll converts every collection in cfg in order, stopping at the first
// fatal error. Reports of the collections converted so far are returned
// alongside the error.
func RunAll(n *Normalizer, cfg *config.NormalizeConfig) ([]*Report, error) {
	reports := make([]*Report, 0, len(cfg.Collections))
	for _, c := range cfg.Collections {
		src, err := SourceFromConfig(c)
		if err != nil {
			return reports, err
		}
		rep, err := n.Run(src)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
