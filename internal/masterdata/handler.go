// Package masterdata wires the reference data modules under one route tree.
package masterdata

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/masterdata/branches"
	"github.com/stocklane/stocklane/internal/masterdata/categories"
	"github.com/stocklane/stocklane/internal/masterdata/companies"
	"github.com/stocklane/stocklane/internal/masterdata/materials"
	"github.com/stocklane/stocklane/internal/masterdata/suppliers"
	"github.com/stocklane/stocklane/internal/masterdata/units"
	"github.com/stocklane/stocklane/internal/masterdata/warehouses"
	"github.com/stocklane/stocklane/internal/rbac"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handlers bundles every master data handler for route mounting.
type Handlers struct {
	Companies  *companies.Handler
	Branches   *branches.Handler
	Warehouses *warehouses.Handler
	Categories *categories.Handler
	Units      *units.Handler
	Suppliers  *suppliers.Handler
	Materials  *materials.Handler
}

type crudHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	Show(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

// MountRoutes registers the master data route tree. Reads require the
// view permission, writes require the edit permission.
func MountRoutes(r chi.Router, h Handlers, guard rbac.Middleware) {
	mount(r, "/companies", h.Companies, guard)
	mount(r, "/branches", h.Branches, guard)
	mount(r, "/warehouses", h.Warehouses, guard)
	mount(r, "/categories", h.Categories, guard)
	mount(r, "/units", h.Units, guard)
	mount(r, "/suppliers", h.Suppliers, guard)
	mount(r, "/materials", h.Materials, guard)
}

func mount(r chi.Router, prefix string, h crudHandler, guard rbac.Middleware) {
	r.Route(prefix, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireAny(shared.PermMasterdataView))
			r.Get("/", h.List)
			r.Get("/{id}", h.Show)
		})
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireAny(shared.PermMasterdataEdit))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}
