package models

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"technotaggr/internal/logging"
	"technotaggr/internal/services"
)

// Directory names inside a model bundle.
const (
	HeadsDirName      = "classification-heads"
	ExtractorsDirName = "feature-extractors"
)

// Skip records a descriptor that was left out of the catalog.
type Skip struct {
	Descriptor string
	Err        error
}

// Catalog is the result of scanning a model bundle.
type Catalog struct {
	Root        string
	Classifiers []*ClassifierConfig
	Backbones   []*BackboneConfig
	Skipped     []Skip
}

// Discover returns every usable classifier under root in a stable order.
// Unusable classifiers are logged and skipped.
func Discover(root string, logger *slog.Logger) ([]*ClassifierConfig, error) {
	catalog, err := Scan(root, logger)
	if err != nil {
		return nil, err
	}
	return catalog.Classifiers, nil
}

// Scan walks root/classification-heads/<head>/*.json, resolves each
// classifier together with its backbone under root/feature-extractors, and
// reports what was skipped. Only a missing heads directory is an error.
func Scan(root string, logger *slog.Logger) (Catalog, error) {
	logger = logging.NewComponentLogger(logger, "catalog")
	catalog := Catalog{Root: root}

	headsDir := filepath.Join(root, HeadsDirName)
	entries, err := os.ReadDir(headsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return catalog, services.Wrap(services.ErrNotFound, "catalog", "scan", fmt.Sprintf("classification heads directory %s", headsDir), err)
		}
		return catalog, services.Wrap(services.ErrConfig, "catalog", "scan", headsDir, err)
	}

	resolver := &backboneResolver{
		extractorsDir: filepath.Join(root, ExtractorsDirName),
		resolved:      make(map[string]*BackboneConfig),
		failed:        make(map[string]error),
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		descriptors, err := filepath.Glob(filepath.Join(headsDir, entry.Name(), "*.json"))
		if err != nil {
			return catalog, fmt.Errorf("glob descriptors: %w", err)
		}
		if len(descriptors) == 0 {
			logger.Debug("no descriptors in head directory", logging.String("dir", entry.Name()))
			continue
		}
		sort.Strings(descriptors)
		for _, path := range descriptors {
			clf, err := loadClassifier(path, resolver)
			if err != nil {
				catalog.Skipped = append(catalog.Skipped, Skip{Descriptor: path, Err: err})
				logging.WarnWithContext(logger, "classifier skipped", "model_skipped",
					logging.String("descriptor", path),
					logging.Error(err),
					logging.Hint("check the descriptor and that its graph and backbone were downloaded"),
					logging.Impact("classifier excluded from this run"),
				)
				continue
			}
			logger.Debug("classifier loaded",
				logging.Classifier(clf.Name),
				logging.String("version", clf.Version),
				logging.Backbone(clf.Backbone.Name),
			)
			catalog.Classifiers = append(catalog.Classifiers, clf)
		}
	}

	sort.SliceStable(catalog.Classifiers, func(i, j int) bool {
		a, b := catalog.Classifiers[i], catalog.Classifiers[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Artifact < b.Artifact
	})
	catalog.Backbones = resolver.list()

	logger.Info("model catalog loaded",
		logging.Int("classifiers", len(catalog.Classifiers)),
		logging.Int("backbones", len(catalog.Backbones)),
		logging.Int("skipped", len(catalog.Skipped)),
	)
	return catalog, nil
}

func loadClassifier(path string, backbones *backboneResolver) (*ClassifierConfig, error) {
	doc, err := LoadDescriptor(path)
	if err != nil {
		return nil, err
	}
	artifact := strings.TrimSuffix(path, filepath.Ext(path)) + ".pb"
	clf, err := ResolveClassifier(doc, artifact)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !fileExists(artifact) {
		return nil, services.Wrap(services.ErrConfig, "catalog", "locate graph", fmt.Sprintf("classifier graph %s not found", artifact), nil)
	}
	backbone, err := backbones.resolve(clf.BackboneRef)
	if err != nil {
		return nil, err
	}
	clf.Backbone = backbone
	return clf, nil
}

// backboneResolver resolves each referenced backbone once so classifiers
// that share an extractor share the same *BackboneConfig.
type backboneResolver struct {
	extractorsDir string
	resolved      map[string]*BackboneConfig
	failed        map[string]error
	order         []string
}

func (r *backboneResolver) resolve(ref BackboneRef) (*BackboneConfig, error) {
	family := ref.Algorithm.Family()
	key := backboneKey(ref.Algorithm, ref.Name)
	if cfg, ok := r.resolved[key]; ok {
		return cfg, nil
	}
	if err, ok := r.failed[key]; ok {
		return nil, err
	}
	cfg, err := r.load(family, ref)
	if err != nil {
		r.failed[key] = err
		return nil, err
	}
	r.resolved[key] = cfg
	r.order = append(r.order, key)
	return cfg, nil
}

func (r *backboneResolver) load(family string, ref BackboneRef) (*BackboneConfig, error) {
	if family == "" {
		return nil, services.Wrap(services.ErrConfig, "catalog", "resolve backbone", fmt.Sprintf("no model family for %s", ref.Algorithm), nil)
	}
	familyDir := filepath.Join(r.extractorsDir, family)
	candidates := []string{
		filepath.Join(familyDir, ref.Name+".json"),
		filepath.Join(familyDir, ref.Name, ref.Name+".json"),
	}
	descriptor := ""
	for _, candidate := range candidates {
		if fileExists(candidate) {
			descriptor = candidate
			break
		}
	}
	if descriptor == "" {
		return nil, services.Wrap(services.ErrConfig, "catalog", "resolve backbone", fmt.Sprintf("descriptor for %s not found in %s", ref.Name, familyDir), nil)
	}

	graphs := []string{
		strings.TrimSuffix(descriptor, ".json") + ".pb",
		filepath.Join(familyDir, ref.Name, ref.Name+".pb"),
		filepath.Join(familyDir, ref.Name+".pb"),
	}
	artifact := ""
	for _, candidate := range graphs {
		if fileExists(candidate) {
			artifact = candidate
			break
		}
	}
	if artifact == "" {
		return nil, services.Wrap(services.ErrConfig, "catalog", "resolve backbone", fmt.Sprintf("graph for %s not found in %s", ref.Name, familyDir), nil)
	}

	doc, err := LoadDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	cfg, err := ResolveBackbone(doc, artifact)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", descriptor, err)
	}
	cfg.Name = ref.Name
	return cfg, nil
}

func (r *backboneResolver) list() []*BackboneConfig {
	out := make([]*BackboneConfig, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.resolved[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BackboneGroup is a backbone together with the classifiers that consume it.
type BackboneGroup struct {
	Backbone    *BackboneConfig
	Classifiers []*ClassifierConfig
}

// GroupByBackbone groups classifiers by backbone key. Groups appear in the
// order their backbone is first referenced; classifiers keep their input order.
func GroupByBackbone(classifiers []*ClassifierConfig) []BackboneGroup {
	index := make(map[string]int)
	var groups []BackboneGroup
	for _, clf := range classifiers {
		if clf == nil || clf.Backbone == nil {
			continue
		}
		key := clf.Backbone.Key()
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, BackboneGroup{Backbone: clf.Backbone})
		}
		groups[pos].Classifiers = append(groups[pos].Classifiers, clf)
	}
	return groups
}

// Filter keeps the classifiers whose name or ID matches one of names
// (case-insensitive). It returns the names that matched nothing. An empty
// names list keeps everything.
func Filter(classifiers []*ClassifierConfig, names []string) ([]*ClassifierConfig, []string) {
	if len(names) == 0 {
		return classifiers, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if key := strings.ToLower(strings.TrimSpace(name)); key != "" {
			wanted[key] = false
		}
	}
	var kept []*ClassifierConfig
	for _, clf := range classifiers {
		matched := false
		for _, key := range []string{strings.ToLower(clf.Name), strings.ToLower(clf.ID)} {
			if _, ok := wanted[key]; ok {
				wanted[key] = true
				matched = true
			}
		}
		if matched {
			kept = append(kept, clf)
		}
	}
	var unknown []string
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if seen, ok := wanted[key]; ok && !seen {
			unknown = append(unknown, name)
			wanted[key] = true
		}
	}
	return kept, unknown
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
