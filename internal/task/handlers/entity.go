package handlers

import (
	"fmt"

	"github.com/slok/bosync/internal/model"
)

// Record kinds of the local store.
const (
	KindProducts   = "products"
	KindCustomers  = "customers"
	KindCategories = "categories"
	KindOrders     = "orders"
)

// Entity is where a local record kind lives on the remote.
type Entity struct {
	Kind     string
	Module   string
	Function string
	Sorts    []model.Sort
}

var byIDAsc = []model.Sort{{Name: "id", Dir: model.SortAsc}}

var entities = map[model.TaskType]Entity{
	model.TaskTypeImportProducts:   {Kind: KindProducts, Module: "product", Function: "list", Sorts: byIDAsc},
	model.TaskTypeImportProduct:    {Kind: KindProducts, Module: "product", Function: "list"},
	model.TaskTypeImportCustomers:  {Kind: KindCustomers, Module: "customer", Function: "list", Sorts: byIDAsc},
	model.TaskTypeImportCategories: {Kind: KindCategories, Module: "category", Function: "list", Sorts: byIDAsc},
	model.TaskTypeImportOrder:      {Kind: KindOrders, Module: "order", Function: "list"},
}

// EntityOf returns the remote entity imported by a task type.
func EntityOf(t model.TaskType) (Entity, error) {
	e, ok := entities[t]
	if !ok {
		return Entity{}, fmt.Errorf("task type %q imports no entity: %w", t, model.ErrUnknownTaskType)
	}
	return e, nil
}

// Kinds returns every local record kind.
func Kinds() []string {
	return []string{KindProducts, KindCustomers, KindCategories, KindOrders}
}
