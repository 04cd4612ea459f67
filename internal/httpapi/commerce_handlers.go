package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"paygate/internal/audit"
	"paygate/internal/auth"
	"paygate/internal/broker"
	"paygate/internal/commerce"
)

type createStoreRequest struct {
	WalletID int64  `json:"wallet_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type createInvoiceRequest struct {
	StoreID  int64  `json:"store_id"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	OrderID  string `json:"order_id"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleStoresCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireScope(w, r, auth.ScopeStoreManagement)
	if !ok {
		return
	}

	var req createStoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// The funding wallet must be the caller's own.
	owner, err := a.entities.OwnerOfWallet(r.Context(), req.WalletID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if owner != principal.User.ID && !principal.User.IsSuperuser {
		handleDomainError(w, r, auth.ErrForbidden)
		return
	}

	store := &commerce.Store{
		WalletID: req.WalletID,
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
	}
	if err := a.entities.CreateStore(r.Context(), store); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/stores/"+strconv.FormatInt(store.ID, 10))
	writeJSON(w, http.StatusCreated, store)
}

func (a *API) handleStoreResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/v1/stores/"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	store, err := a.entities.GetStore(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store)
}

// Invoice creation is open: checkout pages create invoices on behalf of
// customers who hold no credential at all.
func (a *API) handleInvoicesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createInvoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	invoice := &commerce.Invoice{
		StoreID:  req.StoreID,
		Price:    strings.TrimSpace(req.Price),
		Currency: strings.ToLower(strings.TrimSpace(req.Currency)),
		OrderID:  strings.TrimSpace(req.OrderID),
	}
	if err := a.entities.CreateInvoice(r.Context(), invoice); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/invoices/"+strconv.FormatInt(invoice.ID, 10))
	writeJSON(w, http.StatusCreated, invoice)
}

func (a *API) handleInvoiceByOrderID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	orderID := strings.TrimPrefix(r.URL.Path, "/v1/invoices/order_id/")
	if orderID == "" || strings.Contains(orderID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	invoice, err := a.entities.GetInvoiceByOrderID(r.Context(), orderID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) handleInvoiceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/invoices/")

	if strings.HasSuffix(path, "/status") {
		rawID := strings.TrimSuffix(strings.TrimSuffix(path, "/status"), "/")
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.setInvoiceStatus(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	invoice, err := a.entities.GetInvoice(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

// setInvoiceStatus transitions the invoice and fans the change out to every
// open tracking session for it.
func (a *API) setInvoiceStatus(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireScope(w, r, auth.ScopeInvoiceManagement)
	if !ok {
		return
	}
	owner, err := a.entities.OwnerOfInvoice(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if owner != principal.User.ID && !principal.User.IsSuperuser {
		handleDomainError(w, r, auth.ErrForbidden)
		return
	}

	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	invoice, err := a.entities.SetInvoiceStatus(r.Context(), id, req.Status)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.publishInvoiceStatus(r, invoice)

	_ = audit.LogEvent(r.Context(), "invoice.status", map[string]any{
		"invoice_id": invoice.ID,
		"status":     invoice.Status,
	})

	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) publishInvoiceStatus(r *http.Request, invoice *commerce.Invoice) {
	if a.broker == nil {
		return
	}
	data, err := json.Marshal(map[string]string{"status": invoice.Status})
	if err != nil {
		return
	}
	_ = a.broker.Publish(r.Context(), broker.InvoiceTopic(invoice.ID), broker.Event{
		ID:   uuid.NewString(),
		Time: time.Now().UTC(),
		Data: data,
	})
}
