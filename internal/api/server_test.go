package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
)

const testAPIKey = "test-key"

// fakeN8N is a minimal in-memory implementation of the n8n public API.
type fakeN8N struct {
	mu          sync.Mutex
	next        int
	tags        map[string]Tag
	credentials map[string]Credential
	workflows   map[string]Workflow
	// failures maps a route pattern to statuses returned by its next calls.
	failures map[string][]int
	requests []string
}

func newFakeN8N(t *testing.T) (*fakeN8N, *Client) {
	t.Helper()
	f := &fakeN8N{
		tags:        make(map[string]Tag),
		credentials: make(map[string]Credential),
		workflows:   make(map[string]Workflow),
		failures:    make(map[string][]int),
	}

	mux := http.NewServeMux()
	f.route(mux, "GET /api/v1/tags", f.listTags)
	f.route(mux, "POST /api/v1/tags", f.createTag)
	f.route(mux, "DELETE /api/v1/tags/{id}", f.deleteTag)
	f.route(mux, "GET /api/v1/credentials", f.listCredentials)
	f.route(mux, "POST /api/v1/credentials", f.createCredential)
	f.route(mux, "PATCH /api/v1/credentials/{id}", f.updateCredential)
	f.route(mux, "DELETE /api/v1/credentials/{id}", f.deleteCredential)
	f.route(mux, "GET /api/v1/workflows", f.listWorkflows)
	f.route(mux, "POST /api/v1/workflows", f.createWorkflow)
	f.route(mux, "PUT /api/v1/workflows/{id}", f.updateWorkflow)
	f.route(mux, "DELETE /api/v1/workflows/{id}", f.deleteWorkflow)
	f.route(mux, "POST /api/v1/workflows/{id}/activate", f.setActive(true))
	f.route(mux, "POST /api/v1/workflows/{id}/deactivate", f.setActive(false))
	f.route(mux, "PUT /api/v1/workflows/{id}/tags", f.updateWorkflowTags)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, NewClient(srv.URL+"/", testAPIKey)
}

// failNext makes the next calls of a route pattern return the given statuses.
func (f *fakeN8N) failNext(pattern string, statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[pattern] = append(f.failures[pattern], statuses...)
}

// state returns copies of the stored workflows and tags and the requests
// received so far.
func (f *fakeN8N) state() (map[string]Workflow, map[string]Tag, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	workflows := make(map[string]Workflow, len(f.workflows))
	for id, wf := range f.workflows {
		workflows[id] = wf
	}
	tags := make(map[string]Tag, len(f.tags))
	for id, t := range f.tags {
		tags[id] = t
	}
	return workflows, tags, append([]string(nil), f.requests...)
}

func (f *fakeN8N) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		if r.Header.Get("X-N8N-API-KEY") != testAPIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		if queued := f.failures[pattern]; len(queued) > 0 {
			f.failures[pattern] = queued[1:]
			writeJSON(w, queued[0], map[string]string{"message": http.StatusText(queued[0])})
			return
		}
		h(w, r)
	})
}

func (f *fakeN8N) newID() string {
	f.next++
	return strconv.Itoa(f.next)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// paginate returns the page of ids selected by the limit and cursor query
// parameters, ordered numerically.
func paginate(r *http.Request, ids []string) ([]string, string) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	if start > len(ids) {
		start = len(ids)
	}
	end := start + limit
	if end >= len(ids) {
		return ids[start:], ""
	}
	return ids[start:end], strconv.Itoa(end)
}

func (f *fakeN8N) listTags(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for id := range f.tags {
		ids = append(ids, id)
	}
	page, next := paginate(r, ids)
	resp := ListResult[Tag]{Data: []Tag{}, NextCursor: next}
	for _, id := range page {
		resp.Data = append(resp.Data, f.tags[id])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeN8N) createTag(w http.ResponseWriter, r *http.Request) {
	var body Tag
	_ = json.NewDecoder(r.Body).Decode(&body)
	for _, t := range f.tags {
		if t.Name == body.Name {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "Tag already exists"})
			return
		}
	}
	tag := Tag{ID: f.newID(), Name: body.Name}
	f.tags[tag.ID] = tag
	writeJSON(w, http.StatusCreated, tag)
}

func (f *fakeN8N) deleteTag(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tag, ok := f.tags[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	delete(f.tags, id)
	writeJSON(w, http.StatusOK, tag)
}

func (f *fakeN8N) listCredentials(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for id := range f.credentials {
		ids = append(ids, id)
	}
	page, next := paginate(r, ids)
	resp := ListResult[Credential]{Data: []Credential{}, NextCursor: next}
	for _, id := range page {
		resp.Data = append(resp.Data, f.credentials[id])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeN8N) createCredential(w http.ResponseWriter, r *http.Request) {
	var body Credential
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Data == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "request/body must have required property 'data'"})
		return
	}
	cred := Credential{ID: f.newID(), Name: body.Name, Type: body.Type}
	f.credentials[cred.ID] = cred
	writeJSON(w, http.StatusOK, cred)
}

func (f *fakeN8N) updateCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cred, ok := f.credentials[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	var body Credential
	_ = json.NewDecoder(r.Body).Decode(&body)
	cred.Name, cred.Type = body.Name, body.Type
	f.credentials[id] = cred
	writeJSON(w, http.StatusOK, cred)
}

func (f *fakeN8N) deleteCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := f.credentials[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	delete(f.credentials, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeN8N) listWorkflows(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for id := range f.workflows {
		ids = append(ids, id)
	}
	page, next := paginate(r, ids)
	resp := ListResult[Workflow]{Data: []Workflow{}, NextCursor: next}
	for _, id := range page {
		resp.Data = append(resp.Data, f.workflows[id])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeN8N) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var body Workflow
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Settings == nil || body.Connections == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "request/body must have required property 'settings'"})
		return
	}
	wf := Workflow{
		ID:          f.newID(),
		Name:        body.Name,
		Nodes:       body.Nodes,
		Connections: body.Connections,
		Settings:    body.Settings,
	}
	f.workflows[wf.ID] = wf
	writeJSON(w, http.StatusOK, wf)
}

func (f *fakeN8N) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := f.workflows[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	var body Workflow
	_ = json.NewDecoder(r.Body).Decode(&body)
	wf.Name, wf.Nodes, wf.Connections, wf.Settings = body.Name, body.Nodes, body.Connections, body.Settings
	f.workflows[id] = wf
	writeJSON(w, http.StatusOK, wf)
}

func (f *fakeN8N) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := f.workflows[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	delete(f.workflows, id)
	writeJSON(w, http.StatusOK, wf)
}

func (f *fakeN8N) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		wf, ok := f.workflows[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		wf.Active = active
		f.workflows[id] = wf
		writeJSON(w, http.StatusOK, wf)
	}
}

func (f *fakeN8N) updateWorkflowTags(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := f.workflows[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	var body []Tag
	_ = json.NewDecoder(r.Body).Decode(&body)
	wf.Tags = nil
	for _, ref := range body {
		tag, ok := f.tags[ref.ID]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Tag not found"})
			return
		}
		wf.Tags = append(wf.Tags, tag)
	}
	f.workflows[id] = wf
	writeJSON(w, http.StatusOK, wf.Tags)
}
