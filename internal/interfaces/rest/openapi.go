package rest

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/swaggo/swag"
)

// DocName is the name the API document is registered under with swag.
const DocName = "recovery"

//go:embed openapi.yaml
var openAPISpec []byte

type openAPIDoc struct{}

func (openAPIDoc) ReadDoc() string {
	return string(openAPISpec)
}

func init() {
	swag.Register(DocName, openAPIDoc{})
}

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
}

// DocsHandler serves the API document from the swag registry.
func DocsHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc(DocName)
	if err != nil {
		WriteError(w, err, nil)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write([]byte(doc))
}
