// Package dataset loads dataset configurations from a directory of JSON
// files.
//
// Each file describes one dataset:
//
//	{
//	  "dataset": "Daken",
//	  "objectType": "Building",
//	  "attributes": [
//	    {"AttributeName": "Jaar laatste dakonderhoud", "excelColumnName": "Dakonderhoud jaar"}
//	  ]
//	}
//
// The keys dataset, objectType and attributes are required. A file that
// fails to parse is logged and skipped; the other datasets stay available.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/JonMunkholm/datamakelaar/internal/core"
)

const fileExt = ".json"

var requiredKeys = []string{"dataset", "objectType", "attributes"}

// Store holds the parsed dataset configurations of one directory.
type Store struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	byName   map[string]*core.DatasetConfig
	byFile   map[string]string // file name -> dataset name
	problems map[string]error  // file name -> load error
}

var _ core.DatasetSource = (*Store)(nil)

// Open loads every dataset in dir, creating the directory when missing.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}

	s := &Store{dir: dir, logger: logger.With("component", "datasets")}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the configuration directory.
func (s *Store) Dir() string { return s.dir }

// Reload rereads the directory. Only an unreadable directory is an error.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read dataset dir: %w", err)
	}

	byName := make(map[string]*core.DatasetConfig)
	byFile := make(map[string]string)
	problems := make(map[string]error)

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), fileExt) {
			continue
		}
		cfg, err := loadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping dataset file", "file", e.Name(), "error", err)
			problems[e.Name()] = err
			continue
		}
		if prev, dup := byName[cfg.Dataset]; dup {
			s.logger.Warn("duplicate dataset name, keeping first",
				"dataset", cfg.Dataset,
				"file", e.Name(),
				"object_type", prev.ObjectType,
			)
			continue
		}
		byName[cfg.Dataset] = cfg
		byFile[e.Name()] = cfg.Dataset
	}

	s.mu.Lock()
	s.byName = byName
	s.byFile = byFile
	s.problems = problems
	s.mu.Unlock()

	s.logger.Info("datasets loaded", "count", len(byName), "skipped", len(problems))
	return nil
}

// Get returns the dataset called name. The name is matched against the
// dataset key first, then against the file name derived from it.
func (s *Store) Get(name string) (*core.DatasetConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.byName[name]
	if !ok {
		if ds, found := s.byFile[FileName(name)]; found {
			cfg, ok = s.byName[ds], true
		}
	}
	if !ok {
		if err, bad := s.problems[FileName(name)]; bad {
			return nil, fmt.Errorf("%w: %s: %w", core.ErrDatasetNotFound, name, err)
		}
		return nil, fmt.Errorf("%w: %s", core.ErrDatasetNotFound, name)
	}
	return clone(cfg), nil
}

// List returns the dataset names in sorted order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := lo.Keys(s.byName)
	slices.Sort(names)
	return names
}

// Problems returns the load error per skipped file.
func (s *Store) Problems() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Assign(s.problems)
}

// FileName returns the file a dataset is expected in: lower case, spaces
// replaced by underscores.
func FileName(dataset string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(dataset)), " ", "_") + fileExt
}

func loadFile(path string) (*core.DatasetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and checks one dataset configuration.
func Parse(data []byte) (*core.DatasetConfig, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	var errs []error
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			errs = append(errs, fmt.Errorf("missing required key %q", k))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var attrs []json.RawMessage
	if err := json.Unmarshal(keys["attributes"], &attrs); err != nil {
		return nil, errors.New(`"attributes" must be a list`)
	}

	var cfg core.DatasetConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	if strings.TrimSpace(cfg.Dataset) == "" {
		errs = append(errs, errors.New(`"dataset" must not be empty`))
	}
	if strings.TrimSpace(cfg.ObjectType) == "" {
		errs = append(errs, errors.New(`"objectType" must not be empty`))
	}
	for i := range cfg.Attributes {
		a := &cfg.Attributes[i]
		if a.AttributeName == "" {
			errs = append(errs, fmt.Errorf("attribute %d: missing AttributeName", i+1))
			continue
		}
		if a.ExcelColumnName == "" {
			a.ExcelColumnName = a.AttributeName
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

func clone(cfg *core.DatasetConfig) *core.DatasetConfig {
	c := *cfg
	c.Attributes = slices.Clone(cfg.Attributes)
	return &c
}
