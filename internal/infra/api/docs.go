package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

var (
	docOnce  sync.Once
	docBytes []byte
	docErr   error
)

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	docOnce.Do(func() { docBytes, docErr = json.Marshal(OpenAPI()) })
	if docErr != nil {
		writeError(w, http.StatusInternalServerError, "api document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(docBytes)
}

// OpenAPI describes every route under /api.
func OpenAPI() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "NeunovaPDF API",
			Version:     "1.0.0",
			Description: "Document and image conversion endpoints.",
		},
		Paths: openapi3.NewPaths(),
	}

	errSchema := openapi3.NewObjectSchema().WithProperty("error", openapi3.NewStringSchema())
	errResp := func(desc string) *openapi3.Response {
		return openapi3.NewResponse().WithDescription(desc).WithJSONSchema(errSchema)
	}
	binary := openapi3.NewStringSchema().WithFormat("binary")

	for _, rt := range routes {
		form := openapi3.NewObjectSchema()
		if rt.multi {
			form.WithProperty(rt.fileField, openapi3.NewArraySchema().WithItems(binary))
		} else {
			form.WithProperty(rt.fileField, binary)
		}
		form.Required = []string{rt.fileField}
		for _, p := range rt.params {
			ps := openapi3.NewStringSchema()
			if p.integer {
				ps = openapi3.NewIntegerSchema()
			}
			ps.Description = p.desc
			form.WithProperty(p.name, ps)
		}

		op := openapi3.NewOperation()
		op.OperationID = string(rt.op)
		op.Summary = rt.summary
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithContent(openapi3.NewContentWithFormDataSchema(form))}
		op.AddResponse(http.StatusOK, openapi3.NewResponse().
			WithDescription("converted file as an attachment").
			WithContent(openapi3.Content{"application/octet-stream": openapi3.NewMediaType().WithSchema(binary)}))
		op.AddResponse(http.StatusBadRequest, errResp("missing or invalid input"))
		op.AddResponse(http.StatusRequestEntityTooLarge, errResp("upload too large"))
		op.AddResponse(http.StatusTooManyRequests, errResp("quota exceeded"))
		op.AddResponse(http.StatusInternalServerError, errResp("processing failed"))
		op.AddResponse(http.StatusServiceUnavailable, errResp("server busy"))
		doc.AddOperation("/api"+rt.path, http.MethodPost, op)
	}

	ping := openapi3.NewOperation()
	ping.OperationID = "ping"
	ping.Summary = "Liveness probe"
	ping.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("alive").WithJSONSchema(
		openapi3.NewObjectSchema().
			WithProperty("ok", openapi3.NewBoolSchema()).
			WithProperty("time", openapi3.NewInt64Schema())))
	doc.AddOperation("/api/ping", http.MethodGet, ping)

	contact := openapi3.NewOperation()
	contact.OperationID = "contact"
	contact.Summary = "Send a contact message"
	contactSchema := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("email", openapi3.NewStringSchema().WithFormat("email")).
		WithProperty("message", openapi3.NewStringSchema())
	contactSchema.Required = []string{"message"}
	contact.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
		WithRequired(true).
		WithJSONSchema(contactSchema)}
	contact.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("received").WithJSONSchema(
		openapi3.NewObjectSchema().
			WithProperty("ok", openapi3.NewBoolSchema()).
			WithProperty("message", openapi3.NewStringSchema())))
	contact.AddResponse(http.StatusBadRequest, errResp("message required"))
	doc.AddOperation("/api/contact", http.MethodPost, contact)

	return doc
}
