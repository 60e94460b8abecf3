package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestFetchAll(t *testing.T) {
	tests := []struct {
		name      string
		objects   int
		pageSize  int
		wantCalls int
	}{
		{name: "single short page", objects: 3, pageSize: 10, wantCalls: 1},
		{name: "empty result", objects: 0, pageSize: 10, wantCalls: 1},
		{name: "partial last page", objects: 25, pageSize: 10, wantCalls: 3},
		{name: "exact multiple needs empty page", objects: 20, pageSize: 10, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{objects: makeObjects(tt.objects)}
			got, err := NewPaginator(api).FetchAll(context.Background(), ObjectQuery{ObjectType: "Building", PageSize: tt.pageSize})
			if err != nil {
				t.Fatalf("FetchAll: %v", err)
			}
			if len(got) != tt.objects {
				t.Errorf("got %d objects, want %d", len(got), tt.objects)
			}
			if len(api.getCalls) != tt.wantCalls {
				t.Errorf("requests = %d, want %d", len(api.getCalls), tt.wantCalls)
			}
			for i, q := range api.getCalls {
				if q.Page != i {
					t.Errorf("request %d asked page %d", i, q.Page)
				}
			}
		})
	}
}

func TestFetchAll_FullFirstPageThenEmpty(t *testing.T) {
	first := makeObjects(1000)
	api := &fakeAPI{pageFn: func(q ObjectQuery) ([]APIObject, error) {
		if q.Page == 0 {
			return first, nil
		}
		return nil, nil
	}}

	got, err := NewPaginator(api).FetchAll(context.Background(), ObjectQuery{ObjectType: "Building"})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(api.getCalls) != 2 {
		t.Errorf("requests = %d, want 2", len(api.getCalls))
	}
	if !reflect.DeepEqual(got, first) {
		t.Error("result should be the page-0 objects")
	}
	if api.getCalls[0].PageSize != DefaultPageSize {
		t.Errorf("page size = %d, want default %d", api.getCalls[0].PageSize, DefaultPageSize)
	}
}

func TestFetchAll_PassesQueryUnchanged(t *testing.T) {
	api := &fakeAPI{objects: makeObjects(15)}
	q := ObjectQuery{
		ObjectType: "Building",
		Attributes: []string{"Monument"},
		OnlyActive: true,
		Filters:    map[string]string{"Cluster": "C1"},
		PageSize:   10,
	}

	if _, err := NewPaginator(api).FetchAll(context.Background(), q); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	for _, got := range api.getCalls {
		if !reflect.DeepEqual(got.Filters, q.Filters) || !got.OnlyActive || !reflect.DeepEqual(got.Attributes, q.Attributes) {
			t.Errorf("request = %+v", got)
		}
	}
}

func TestFetchAll_Error(t *testing.T) {
	boom := errors.New("boom")
	api := &fakeAPI{pageFn: func(ObjectQuery) ([]APIObject, error) { return nil, boom }}

	if _, err := NewPaginator(api).FetchAll(context.Background(), ObjectQuery{ObjectType: "Building"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestFetchAll_Progress(t *testing.T) {
	api := &fakeAPI{objects: makeObjects(15)}
	var events []ProgressEvent

	_, err := NewPaginator(api).
		WithProgress(func(e ProgressEvent) { events = append(events, e) }).
		FetchAll(context.Background(), ObjectQuery{ObjectType: "Building", PageSize: 10})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	want := []ProgressEvent{
		{Phase: PhaseFetching, Current: 1, Objects: 10},
		{Phase: PhaseFetching, Current: 2, Objects: 15},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v, want %+v", events, want)
	}
}

func TestFetchAllFiltered(t *testing.T) {
	api := &fakeAPI{pageFn: func(q ObjectQuery) ([]APIObject, error) {
		return []APIObject{{Identifier: q.Filters["Cluster"] + "-b"}}, nil
	}}
	base := ObjectQuery{ObjectType: "Building", Filters: map[string]string{"Status": "actief"}, PageSize: 10}

	got, err := NewPaginator(api).FetchAllFiltered(context.Background(), base, "Cluster", []string{"C1", "C2"})
	if err != nil {
		t.Fatalf("FetchAllFiltered: %v", err)
	}
	if len(got) != 2 || got[0].Identifier != "C1-b" || got[1].Identifier != "C2-b" {
		t.Errorf("objects = %+v", got)
	}
	if api.getCalls[1].Filters["Status"] != "actief" {
		t.Error("existing filters should be kept")
	}
	if _, leaked := base.Filters["Cluster"]; leaked {
		t.Error("caller's filter map was modified")
	}
}

func TestFetchAllFiltered_NoValues(t *testing.T) {
	api := &fakeAPI{objects: makeObjects(3)}
	got, err := NewPaginator(api).FetchAllFiltered(context.Background(), ObjectQuery{ObjectType: "Building"}, "Cluster", nil)
	if err != nil {
		t.Fatalf("FetchAllFiltered: %v", err)
	}
	if len(got) != 3 || api.getCalls[0].Filters != nil {
		t.Errorf("objects = %d, filters = %v", len(got), api.getCalls[0].Filters)
	}
}
