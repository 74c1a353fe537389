// Package api provides the HTTP handlers for the tenant data plane and the
// admin schema surface.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"basehub/internal/domain"
	"basehub/internal/engine"
	"basehub/internal/middleware"
	"basehub/internal/query"
)

// Handler serves both route groups. The tenant identity always comes from the
// authenticated capability, never from the request path or body.
type Handler struct {
	crud    *engine.CrudEngine
	ddl     *engine.DdlEngine
	schemas domain.SchemaProvider
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(crud *engine.CrudEngine, ddl *engine.DdlEngine, schemas domain.SchemaProvider, logger *slog.Logger) *Handler {
	return &Handler{crud: crud, ddl: ddl, schemas: schemas, logger: logger}
}

// Routes mounts the data-plane and admin route groups. Authentication runs in
// an outer middleware; this only adds the per-group role guards.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/v1/tables", func(r chi.Router) {
		r.Use(middleware.RequireRole(domain.RoleApp))
		r.Get("/", h.listTables)
		r.Get("/{table}", h.selectRows)
		r.Post("/{table}", h.insertRows)
		r.Patch("/{table}", h.updateRows)
		r.Delete("/{table}", h.deleteRows)
	})

	r.Route("/v1/admin/tables", func(r chi.Router) {
		r.Use(middleware.RequireRole(domain.RoleOwner))
		r.Post("/", h.createTable)
		r.Delete("/{table}", h.dropTable)
		r.Patch("/{table}", h.renameTable)
		r.Post("/{table}/columns", h.addColumn)
		r.Delete("/{table}/columns/{column}", h.dropColumn)
		r.Patch("/{table}/columns/{column}", h.renameColumn)
	})

	return r
}

// tenant returns the authenticated tenant. The role guards guarantee a
// capability is present.
func tenant(r *http.Request) domain.TenantID {
	cap, _ := middleware.CapabilityFromContext(r.Context())
	return cap.TenantID
}

// --- data plane ---

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.schemas.GetTables(r.Context(), tenant(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	type tableSummary struct {
		Name    string              `json:"name"`
		Columns []domain.ColumnInfo `json:"columns"`
	}
	out := make([]tableSummary, len(tables))
	for i, t := range tables {
		out[i] = tableSummary{Name: t.Name, Columns: t.Columns}
	}
	writeData(w, http.StatusOK, out, int64(len(out)))
}

func (h *Handler) selectRows(w http.ResponseWriter, r *http.Request) {
	q, err := query.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.crud.Select(r.Context(), tenant(r), chi.URLParam(r, "table"), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, res.Rows, res.RowCount)
}

func (h *Handler) insertRows(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rows      []map[string]any `json:"rows"`
		Returning bool             `json:"returning"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.crud.Insert(r.Context(), tenant(r), chi.URLParam(r, "table"), body.Rows, body.Returning)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, res.Rows, res.RowCount)
}

func (h *Handler) updateRows(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Values map[string]any `json:"values"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q, err := query.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.crud.Update(r.Context(), tenant(r), chi.URLParam(r, "table"), body.Values, q.Filters)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, res.Rows, res.RowCount)
}

func (h *Handler) deleteRows(w http.ResponseWriter, r *http.Request) {
	q, err := query.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.crud.Delete(r.Context(), tenant(r), chi.URLParam(r, "table"), q.Filters)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, nil, res.RowCount)
}

// --- admin schema surface ---

func (h *Handler) createTable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string                    `json:"name"`
		Columns []domain.ColumnDefinition `json:"columns"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.ddl.CreateTable(r.Context(), tenant(r), body.Name, body.Columns); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"name": body.Name}, 0)
}

func (h *Handler) dropTable(w http.ResponseWriter, r *http.Request) {
	if err := h.ddl.DropTable(r.Context(), tenant(r), chi.URLParam(r, "table")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, nil, 0)
}

func (h *Handler) renameTable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.ddl.RenameTable(r.Context(), tenant(r), chi.URLParam(r, "table"), body.Name); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"name": body.Name}, 0)
}

func (h *Handler) addColumn(w http.ResponseWriter, r *http.Request) {
	var body domain.ColumnDefinition
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.ddl.AddColumn(r.Context(), tenant(r), chi.URLParam(r, "table"), body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, body, 0)
}

func (h *Handler) dropColumn(w http.ResponseWriter, r *http.Request) {
	err := h.ddl.DropColumn(r.Context(), tenant(r), chi.URLParam(r, "table"), chi.URLParam(r, "column"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, nil, 0)
}

func (h *Handler) renameColumn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	err := h.ddl.RenameColumn(r.Context(), tenant(r), chi.URLParam(r, "table"), chi.URLParam(r, "column"), body.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"name": body.Name}, 0)
}

// decodeBody parses a JSON request body, rejecting malformed JSON as a
// validation error.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrValidation("invalid JSON body: %s", err)
	}
	return nil
}
