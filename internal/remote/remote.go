package remote

import (
	"context"

	"github.com/slok/bosync/internal/model"
)

// Query are the arguments of a remote collection function.
type Query struct {
	Query    string         `json:"query,omitempty"`
	Language string         `json:"lang,omitempty"`
	Start    int            `json:"start"`
	Limit    int            `json:"limit"`
	Sorts    []model.Sort   `json:"sorts,omitempty"`
	Filters  []model.Filter `json:"filters,omitempty"`
}

// Page is one page of a remote collection.
type Page struct {
	// Count is the total number of items of the collection.
	Count int64          `json:"count"`
	Data  []model.Record `json:"data"`
}

// Caller calls remote collection functions.
type Caller interface {
	Call(ctx context.Context, module, function string, q Query) (*Page, error)
}

// Saver calls remote write functions.
type Saver interface {
	Save(ctx context.Context, module, function string, payload map[string]any) (map[string]any, error)
}

// Client is a full remote API client.
type Client interface {
	Caller
	Saver
}
