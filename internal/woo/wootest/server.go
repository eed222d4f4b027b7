// Package wootest provides an in-memory WooCommerce REST server for tests.
package wootest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/woo"
)

const (
	ConsumerKey    = "ck_test"
	ConsumerSecret = "cs_test"
	apiPrefix      = "/wp-json/wc/v3"
)

// Failure is a canned error response
type Failure struct {
	Status     int
	Code       string
	ResourceID int64
}

// Product is a stored destination product
type Product struct {
	ID         int64
	Payload    woo.ProductPayload
	Variations []woo.VariationPayload
}

// Server fakes the subset of the WooCommerce API the migrator uses
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	nextID       int64
	products     map[int64]*Product
	terms        map[string][]woo.Term
	createFails  []Failure
	variationErr int
	creates      int
	updates      int
}

// New starts a server that is closed when the test ends
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		nextID:   100,
		products: make(map[int64]*Product),
		terms:    make(map[string][]woo.Term),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Destination returns tenant credentials pointing at the server
func (s *Server) Destination(userID string) *domain.Destination {
	return &domain.Destination{
		UserID:         userID,
		StoreURL:       s.URL,
		ConsumerKey:    ConsumerKey,
		ConsumerSecret: ConsumerSecret,
	}
}

// FailCreates makes the next product creates fail in order
func (s *Server) FailCreates(failures ...Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createFails = append(s.createFails, failures...)
}

// FailVariations makes every variation create return status
func (s *Server) FailVariations(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variationErr = status
}

// Seed stores an existing product and returns its id
func (s *Server) Seed(p woo.ProductPayload) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(p)
}

// Product returns a copy of the stored product
func (s *Server) Product(id int64) (Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

// Len returns the number of stored products
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

// Calls returns the number of create and update requests received
func (s *Server) Calls() (creates, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.updates
}

// Terms returns the stored terms of kind
func (s *Server) Terms(kind woo.TermKind) []woo.Term {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]woo.Term(nil), s.terms[string(kind)]...)
}

func (s *Server) store(p woo.ProductPayload) int64 {
	s.nextID++
	s.products[s.nextID] = &Product{ID: s.nextID, Payload: p}
	return s.nextID
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	key, secret, ok := r.BasicAuth()
	if !ok {
		key, secret = r.URL.Query().Get("consumer_key"), r.URL.Query().Get("consumer_secret")
	}
	if key != ConsumerKey || secret != ConsumerSecret {
		writeError(w, Failure{Status: http.StatusUnauthorized, Code: "woocommerce_rest_cannot_view"})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	parts := strings.Split(strings.Trim(path, "/"), "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(parts) == 1 && parts[0] == "products" && r.Method == http.MethodGet:
		s.listProducts(w, r)
	case len(parts) == 1 && parts[0] == "products" && r.Method == http.MethodPost:
		s.createProduct(w, r)
	case len(parts) == 2 && parts[0] == "products" && (parts[1] == "categories" || parts[1] == "tags"):
		s.handleTerms(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "products" && r.Method == http.MethodPut:
		s.updateProduct(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "products" && parts[2] == "variations" && r.Method == http.MethodPost:
		s.createVariation(w, r, parts[1])
	default:
		writeError(w, Failure{Status: http.StatusNotFound, Code: "rest_no_route"})
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	sku, slug := r.URL.Query().Get("sku"), r.URL.Query().Get("slug")
	out := []woo.Product{}
	for _, p := range s.products {
		if (sku != "" && p.Payload.SKU == sku) || (slug != "" && p.Payload.Slug == slug) {
			out = append(out, p.view())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	s.creates++
	if len(s.createFails) > 0 {
		f := s.createFails[0]
		s.createFails = s.createFails[1:]
		writeError(w, f)
		return
	}

	var payload woo.ProductPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, Failure{Status: http.StatusBadRequest, Code: "rest_invalid_json"})
		return
	}
	for _, p := range s.products {
		if payload.SKU != "" && p.Payload.SKU == payload.SKU {
			writeError(w, Failure{Status: http.StatusBadRequest, Code: "product_invalid_sku", ResourceID: p.ID})
			return
		}
	}

	id := s.store(payload)
	writeJSON(w, http.StatusCreated, s.products[id].view())
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request, rawID string) {
	s.updates++
	id, _ := strconv.ParseInt(rawID, 10, 64)
	p, ok := s.products[id]
	if !ok {
		writeError(w, Failure{Status: http.StatusNotFound, Code: "woocommerce_rest_product_invalid_id"})
		return
	}
	var payload woo.ProductPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, Failure{Status: http.StatusBadRequest, Code: "rest_invalid_json"})
		return
	}
	p.Payload = payload
	writeJSON(w, http.StatusOK, p.view())
}

func (s *Server) createVariation(w http.ResponseWriter, r *http.Request, rawID string) {
	id, _ := strconv.ParseInt(rawID, 10, 64)
	p, ok := s.products[id]
	if !ok {
		writeError(w, Failure{Status: http.StatusNotFound, Code: "woocommerce_rest_product_invalid_id"})
		return
	}
	if s.variationErr != 0 {
		writeError(w, Failure{Status: s.variationErr, Code: "variation_failed"})
		return
	}
	var v woo.VariationPayload
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, Failure{Status: http.StatusBadRequest, Code: "rest_invalid_json"})
		return
	}
	p.Variations = append(p.Variations, v)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id*1000 + int64(len(p.Variations))})
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request, kind string) {
	switch r.Method {
	case http.MethodGet:
		search := strings.ToLower(r.URL.Query().Get("search"))
		out := []woo.Term{}
		for _, t := range s.terms[kind] {
			if strings.Contains(strings.ToLower(t.Name), search) {
				out = append(out, t)
			}
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, t := range s.terms[kind] {
			if strings.EqualFold(t.Name, body.Name) {
				writeError(w, Failure{Status: http.StatusBadRequest, Code: "term_exists", ResourceID: t.ID})
				return
			}
		}
		s.nextID++
		t := woo.Term{ID: s.nextID, Name: body.Name, Slug: strings.ToLower(strings.ReplaceAll(body.Name, " ", "-"))}
		s.terms[kind] = append(s.terms[kind], t)
		writeJSON(w, http.StatusCreated, t)
	default:
		writeError(w, Failure{Status: http.StatusMethodNotAllowed, Code: "rest_no_route"})
	}
}

func (p *Product) view() woo.Product {
	return woo.Product{ID: p.ID, Name: p.Payload.Name, Slug: p.Payload.Slug, SKU: p.Payload.SKU, Type: p.Payload.Type}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, f Failure) {
	body := map[string]any{
		"code":    f.Code,
		"message": fmt.Sprintf("fake error %s", f.Code),
		"data":    map[string]any{"status": f.Status},
	}
	if f.ResourceID > 0 {
		body["data"] = map[string]any{"status": f.Status, "resource_id": f.ResourceID}
	}
	writeJSON(w, f.Status, body)
}
