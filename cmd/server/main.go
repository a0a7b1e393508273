// cmd/server is a thin HTTP demonstration binary: it boots the query
// engine, wires its operations onto a handful of REST endpoints, and
// serves them until terminated.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blackcore/queryengine/internal/server"
	"github.com/blackcore/queryengine/pkg/metrics"
	"github.com/blackcore/queryengine/pkg/middleware"
	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/queryengine/export"
	"github.com/blackcore/queryengine/pkg/queryengine/exportjob"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/reqid"
	"github.com/blackcore/queryengine/pkg/response"
	"github.com/blackcore/queryengine/pkg/router"
	"github.com/blackcore/queryengine/pkg/validate"
)

func main() {
	engines, cleanup, err := server.Boot()
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	h := newHandlers(engines)

	r := router.New()
	r.Use(reqid.Middleware(), middleware.Recovery, middleware.Logger, metrics.Middleware())
	r.HandleFunc("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.Post("/query", "query.execute", h.executeQuery)
	api.Post("/query/nl", "query.executeNL", h.executeNLQuery)
	api.Get("/stats", "stats.show", h.showStats)
	api.Post("/exports", "exports.create", h.createExport)
	api.Get("/exports/{jobID}", "exports.show", h.getExport)
	api.Delete("/exports/{jobID}", "exports.cancel", h.cancelExport)

	if err := server.Serve(r.Handler()); err != nil {
		log.Fatal(err)
	}
}

type handlers struct {
	engines *server.Engines
}

func newHandlers(e *server.Engines) *handlers {
	return &handlers{engines: e}
}

// executeQueryRequest mirrors model.StructuredQuery with validation tags;
// the engine's own Execute still re-validates filter/include bounds.
type executeQueryRequest struct {
	Database    string            `json:"database" validate:"required"`
	Filters     []model.Filter    `json:"filters"`
	SortFields  []model.SortField `json:"sort_fields"`
	Includes    []model.Include   `json:"includes"`
	Pagination  model.Pagination  `json:"pagination"`
	Distinct    bool              `json:"distinct"`
	SourceQuery string            `json:"source_query"`
}

func (h *handlers) executeQuery(w http.ResponseWriter, r *http.Request) {
	var req executeQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if errs := validate.Struct(req); validate.HasErrors(errs) {
		response.ValidationError(w, errs)
		return
	}

	result, err := h.engines.Query.Execute(r.Context(), req.toStructuredQuery())
	if err != nil {
		writeQueryError(w, err)
		return
	}
	response.QueryResult(w, result)
}

func (req executeQueryRequest) toStructuredQuery() model.StructuredQuery {
	return model.StructuredQuery{
		Database:    req.Database,
		Filters:     req.Filters,
		SortFields:  req.SortFields,
		Includes:    req.Includes,
		Pagination:  req.Pagination,
		Distinct:    req.Distinct,
		SourceQuery: req.SourceQuery,
	}
}

type executeNLRequest struct {
	Text    string                 `json:"text" validate:"required"`
	Context map[string]interface{} `json:"context"`
}

func (h *handlers) executeNLQuery(w http.ResponseWriter, r *http.Request) {
	var req executeNLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if errs := validate.Struct(req); validate.HasErrors(errs) {
		response.ValidationError(w, errs)
		return
	}

	result, err := h.engines.Query.ExecuteNL(r.Context(), req.Text, req.Context)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	response.QueryResult(w, result)
}

func (h *handlers) showStats(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.engines.Stats.Snapshot())
}

type createExportRequest struct {
	Query    executeQueryRequest `json:"query" validate:"required"`
	Format   string              `json:"format" validate:"required"`
	Filename string              `json:"filename"`
	Template string              `json:"template"`
}

func (h *handlers) createExport(w http.ResponseWriter, r *http.Request) {
	var req createExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if errs := validate.Struct(req); validate.HasErrors(errs) {
		response.ValidationError(w, errs)
		return
	}
	if errs := validate.Struct(req.Query); validate.HasErrors(errs) {
		response.ValidationError(w, errs)
		return
	}

	q := req.Query.toStructuredQuery()
	q.Pagination = model.Pagination{Page: 1, Size: 1_000_000}

	jobID, err := h.engines.Exports.Create(r.Context(), exportjob.CreateRequest{
		Format:   export.Format(req.Format),
		Filename: req.Filename,
		Template: req.Template,
	}, func(ctx context.Context) (export.RecordIterator, error) {
		result, err := h.engines.Query.Execute(ctx, q)
		if err != nil {
			return nil, err
		}
		return &mapSliceIterator{rows: result.Data}, nil
	})
	if err != nil {
		writeQueryError(w, err)
		return
	}
	response.Created(w, map[string]string{"job_id": jobID})
}

func (h *handlers) getExport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok := h.engines.Exports.Get(jobID)
	if !ok {
		response.NotFound(w)
		return
	}
	response.Success(w, job)
}

func (h *handlers) cancelExport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.engines.Exports.Cancel(jobID); err != nil {
		writeQueryError(w, err)
		return
	}
	response.Success(w, map[string]string{"status": "cancelling"})
}

// mapSliceIterator adapts an already-materialized result page to
// export.RecordIterator for the demo HTTP binding. A true streaming
// pipeline would page through the loader directly; this binding keeps the
// exportjob worker decoupled from how the caller produced its rows.
type mapSliceIterator struct {
	rows []map[string]interface{}
	pos  int
}

func (it *mapSliceIterator) Next() (map[string]interface{}, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

func writeQueryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := qerr.Kind("unknown")

	if qe, ok := err.(*qerr.Error); ok {
		kind = qe.Kind
		switch qe.Kind {
		case qerr.DatabaseNotFound:
			status = http.StatusNotFound
		case qerr.BadDatabaseShape, qerr.BadFilterShape, qerr.BadRegex, qerr.BadCursor, qerr.TooComplex:
			status = http.StatusUnprocessableEntity
		case qerr.QueryTimeout:
			status = http.StatusGatewayTimeout
		case qerr.QueryCancelled:
			status = 499
		}
	}

	metrics.RecordQueryError(string(kind))
	response.Error(w, status, err.Error())
}
