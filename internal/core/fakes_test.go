package core

import (
	"context"
	"fmt"
	"sync"
)

// fakeAPI is an in-memory ObjectAPI.
type fakeAPI struct {
	mu sync.Mutex

	metadata    *MetadataPayload
	metadataErr error

	// objects is served page by page; pageFn overrides it when set.
	objects []APIObject
	pageFn  func(q ObjectQuery) ([]APIObject, error)

	// saveFn handles SaveObjects call n (1-based); nil means every object
	// succeeds.
	saveFn func(n int, objects []APIObject) ([]ObjectResult, error)

	getCalls  []ObjectQuery
	saveCalls [][]APIObject
	// saveCtxErrs holds ctx.Err() as seen by each SaveObjects call.
	saveCtxErrs []error
	saveModes []WriteMode
}

func (f *fakeAPI) GetMetadata(_ context.Context, _ string) (*MetadataPayload, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return f.metadata, nil
}

func (f *fakeAPI) GetObjects(_ context.Context, q ObjectQuery) (*ObjectPage, error) {
	f.mu.Lock()
	f.getCalls = append(f.getCalls, q)
	f.mu.Unlock()

	if f.pageFn != nil {
		objs, err := f.pageFn(q)
		if err != nil {
			return nil, err
		}
		return &ObjectPage{Objects: objs, TotalCount: len(objs)}, nil
	}

	start := q.Page * q.PageSize
	if start >= len(f.objects) {
		return &ObjectPage{Objects: []APIObject{}, TotalCount: len(f.objects)}, nil
	}
	end := min(start+q.PageSize, len(f.objects))
	return &ObjectPage{Objects: f.objects[start:end], TotalCount: len(f.objects)}, nil
}

func (f *fakeAPI) SaveObjects(ctx context.Context, mode WriteMode, objects []APIObject) ([]ObjectResult, error) {
	f.mu.Lock()
	f.saveCtxErrs = append(f.saveCtxErrs, ctx.Err())
	f.saveCalls = append(f.saveCalls, objects)
	f.saveModes = append(f.saveModes, mode)
	n := len(f.saveCalls)
	f.mu.Unlock()

	if f.saveFn != nil {
		return f.saveFn(n, objects)
	}
	return succeedAll(objects), nil
}

func succeedAll(objects []APIObject) []ObjectResult {
	out := make([]ObjectResult, len(objects))
	for i, o := range objects {
		out[i] = ObjectResult{Identifier: o.Identifier, Success: true}
	}
	return out
}

// fakeDatasets is a fixed DatasetSource.
type fakeDatasets map[string]*DatasetConfig

func (d fakeDatasets) Get(name string) (*DatasetConfig, error) {
	cfg, ok := d[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	return cfg, nil
}

func (d fakeDatasets) List() []string {
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	return names
}

// memAuditStore keeps audit entries in memory.
type memAuditStore struct {
	mu      sync.Mutex
	entries []AuditLogParams
	purged  []int
	err     error
}

func (m *memAuditStore) Log(_ context.Context, p AuditLogParams) (*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.entries = append(m.entries, p)
	return &AuditEntry{Action: p.Action, Dataset: p.Dataset}, nil
}

func (m *memAuditStore) List(context.Context, AuditLogFilter) ([]AuditEntry, error) {
	return nil, nil
}

func (m *memAuditStore) Purge(_ context.Context, days int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.purged = append(m.purged, days)
	return 3, nil
}

// buildingConfig is the dataset used throughout the tests.
func buildingConfig() *DatasetConfig {
	return &DatasetConfig{
		Dataset:    "Daken",
		ObjectType: "Building",
		Attributes: []AttributeMapping{
			{AttributeName: "Jaar laatste dakonderhoud", ExcelColumnName: "Dakonderhoud jaar"},
			{AttributeName: "Aantal verdiepingen", ExcelColumnName: "Verdiepingen"},
			{AttributeName: "Monument", ExcelColumnName: "Monument"},
			{AttributeName: "Dakvorm", ExcelColumnName: "Dakvorm"},
			{AttributeName: "Opleverdatum", ExcelColumnName: "Opleverdatum"},
		},
	}
}

// buildingMetadata matches buildingConfig, partly through suffixed names.
func buildingMetadata() *MetadataPayload {
	return &MetadataPayload{ObjectTypes: []ObjectTypeMetadata{
		{Name: "Complex", Attributes: []AttributeDescriptor{{Name: "Naam", Type: "STRING"}}},
		{Name: "Building", Attributes: []AttributeDescriptor{
			{Name: "Jaar laatste dakonderhoud - Building - Woonstad", Type: "DATE", DateFormat: "yyyy"},
			{Name: "Aantal verdiepingen", Type: "INT"},
			{Name: "Monument", Type: "BOOLEAN", Required: true},
			{Name: "Dakvorm - Building", Type: "STRING", AttributeValueOptions: []string{"Plat", "Schuin"}},
			{Name: "Opleverdatum", Type: "DATE", DateFormat: "dd-MM-yyyy", Definition: "Datum van oplevering"},
		}},
	}}
}

func buildingMetadataMap() MetadataMap {
	mm, err := BuildMetadataMap(buildingMetadata(), buildingConfig())
	if err != nil {
		panic(err)
	}
	return mm
}

// sheet builds a Table from a header and rows.
func sheet(columns []string, rows ...[]any) *Table {
	return &Table{Columns: columns, Rows: rows}
}
