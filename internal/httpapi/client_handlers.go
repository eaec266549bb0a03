package httpapi

import (
	"net/http"
	"strings"

	"grantdesk.org/internal/access"
)

type clientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type clientPatchRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (a *API) handleClientsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listClients(w, r)
	case http.MethodPost:
		a.createClient(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleClientResource(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/clients/"))
	if id == "" || rest != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getClient(w, r, id)
	case http.MethodPut:
		a.updateClient(w, r, id)
	case http.MethodDelete:
		a.deleteClient(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}

	client, err := a.store.CreateClient(r.Context(), access.Client{Name: name, Email: email})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "client.create", "client", client.ID, map[string]string{
		"name": name,
	})
	w.Header().Set("Location", "/api/clients/"+client.ID)
	writeData(w, http.StatusCreated, client)
}

func (a *API) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := a.store.ListClients(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if clients == nil {
		clients = []access.Client{}
	}
	writeData(w, http.StatusOK, clients)
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request, id string) {
	client, err := a.store.GetClient(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, client)
}

func (a *API) updateClient(w http.ResponseWriter, r *http.Request, id string) {
	var req clientPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == nil && req.Email == nil {
		writeError(w, r, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name must not be blank")
		return
	}
	if req.Email != nil && !strings.Contains(*req.Email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}

	client, err := a.store.UpdateClient(r.Context(), id, access.ClientUpdate{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "client.update", "client", id, nil)
	writeData(w, http.StatusOK, client)
}

func (a *API) deleteClient(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.store.DeleteClient(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "client.delete", "client", id, nil)
	writeData(w, http.StatusOK, map[string]string{"id": id})
}
