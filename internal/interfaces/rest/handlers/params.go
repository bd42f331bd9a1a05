package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
)

const defaultPageSize = 50

type page struct {
	limit  int
	offset int
}

// pageParams binds ?limit=&offset=. A missing limit means defaultPageSize.
func pageParams(r *http.Request) (page, error) {
	var limit, offset *int
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		return page{}, application.NewInvalidInputError(err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", q, &offset); err != nil {
		return page{}, application.NewInvalidInputError(err)
	}
	p := page{limit: defaultPageSize}
	if limit != nil {
		p.limit = *limit
	}
	if offset != nil {
		p.offset = *offset
	}
	return p, nil
}

func boolParam(r *http.Request, name string) (*bool, error) {
	var v *bool
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	return v, nil
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}
