package api

import (
	"net/http"
	"path"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gdogen/internal/codegen"
	"github.com/nerrad567/gdogen/internal/gdo"
)

// TypeInfo describes one entry of a platform's sensor type registry.
type TypeInfo struct {
	Type   string `json:"type"`
	Method string `json:"method"`
}

// PlatformTypes describes the registry of one entity platform.
type PlatformTypes struct {
	Platform string     `json:"platform"`
	Class    string     `json:"class"`
	Value    string     `json:"value"`
	Types    []TypeInfo `json:"types"`
}

// GenerateResponse is returned by a successful generation request.
type GenerateResponse struct {
	Source string   `json:"source,omitempty"`
	Units  []string `json:"units"`
	Code   string   `json:"code,omitempty"`
}

func platformTypes(p *gdo.Platform) PlatformTypes {
	keys := p.Types.Keys()
	types := make([]TypeInfo, 0, len(keys))
	for _, key := range keys {
		method, _ := p.Types.Lookup(key)
		types = append(types, TypeInfo{Type: key, Method: method})
	}
	return PlatformTypes{
		Platform: p.Key,
		Class:    p.Class.String(),
		Value:    p.Value,
		Types:    types,
	}
}

// handleListTypes returns every platform's registry.
func (s *Server) handleListTypes(w http.ResponseWriter, _ *http.Request) {
	platforms := gdo.Platforms()
	out := make([]PlatformTypes, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, platformTypes(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": out,
	})
}

// handleGetPlatformTypes returns one platform's registry.
func (s *Server) handleGetPlatformTypes(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "platform")
	p, ok := gdo.PlatformByKey(key)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown platform: "+key)
		return
	}
	writeJSON(w, http.StatusOK, platformTypes(p))
}

// handleGenerate generates code for the device file in the request body.
// With ?format=text the generated source is returned as plain text.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	prog, err := s.program(r)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	code := prog.Render()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/x-c++src; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // Best-effort write to response; connection may be closed
		w.Write([]byte(code))
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Source: prog.Source,
		Units:  unitNames(prog),
		Code:   code,
	})
}

// handleValidate checks the device file in the request body without
// returning the generated code.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	prog, err := s.program(r)
	if err != nil {
		writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{
		Source: prog.Source,
		Units:  unitNames(prog),
	})
}

// program decodes the request body as a device file and generates it.
// The optional ?source= parameter names the file in the generated header.
func (s *Server) program(r *http.Request) (*codegen.Program, error) {
	src := r.URL.Query().Get("source")
	if strings.IndexFunc(src, unicode.IsControl) >= 0 {
		return nil, &codegen.SchemaError{Path: "source", Reason: "must not contain control characters"}
	}

	doc, err := gdo.Decode(r.Body)
	if err != nil {
		return nil, err
	}
	if src != "" {
		doc.Source = path.Clean(src)
	}
	return doc.Program(s.function)
}

func unitNames(prog *codegen.Program) []string {
	units := prog.Units()
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Name)
	}
	return names
}
