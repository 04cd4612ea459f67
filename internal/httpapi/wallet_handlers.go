package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"paygate/internal/auth"
	"paygate/internal/coins"
	"paygate/internal/commerce"
)

type createWalletRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
	XPub     string `json:"xpub"`
}

func (a *API) handleWalletsCollection(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireScope(w, r, auth.ScopeWalletManagement)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createWalletRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		wallet := &commerce.Wallet{
			UserID:   principal.User.ID,
			Name:     strings.TrimSpace(req.Name),
			Currency: strings.ToLower(strings.TrimSpace(req.Currency)),
			XPub:     strings.TrimSpace(req.XPub),
		}
		if err := a.entities.CreateWallet(r.Context(), wallet); err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/wallets/"+strconv.FormatInt(wallet.ID, 10))
		writeJSON(w, http.StatusCreated, wallet)
	case http.MethodGet:
		wallets, err := a.entities.ListWallets(r.Context(), principal.User.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if wallets == nil {
			wallets = []*commerce.Wallet{}
		}
		writeJSON(w, http.StatusOK, wallets)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleWalletResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/wallets/")
	if path == "balance" {
		a.handleAggregateBalance(w, r)
		return
	}
	wantBalance := false
	if strings.HasSuffix(path, "/balance") {
		path = strings.TrimSuffix(strings.TrimSuffix(path, "/balance"), "/")
		wantBalance = true
	}

	wallet, ok := a.ownedWallet(w, r, path)
	if !ok {
		return
	}
	if !wantBalance {
		writeJSON(w, http.StatusOK, wallet)
		return
	}

	provider, err := a.coins.Get(wallet.Currency)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unsupported currency")
		return
	}
	balance, err := provider.Balance(r.Context(), wallet.XPub)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "balance provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// handleAggregateBalance sums confirmed and unconfirmed balances over every
// wallet the caller owns. Wallets whose currency has no configured daemon
// are skipped rather than failing the whole aggregate.
func (a *API) handleAggregateBalance(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireScope(w, r, auth.ScopeWalletManagement)
	if !ok {
		return
	}
	wallets, err := a.entities.ListWallets(r.Context(), principal.User.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	var confirmed, unconfirmed []string
	for _, wallet := range wallets {
		provider, err := a.coins.Get(wallet.Currency)
		if err != nil {
			continue
		}
		balance, err := provider.Balance(r.Context(), wallet.XPub)
		if err != nil {
			writeError(w, r, http.StatusBadGateway, "balance provider unavailable")
			return
		}
		confirmed = append(confirmed, balance.Confirmed)
		unconfirmed = append(unconfirmed, balance.Unconfirmed)
	}

	totalConfirmed, err := coins.SumDecimal(confirmed...)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "balance provider unavailable")
		return
	}
	totalUnconfirmed, err := coins.SumDecimal(unconfirmed...)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "balance provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, coins.Balance{
		Confirmed:   totalConfirmed,
		Unconfirmed: totalUnconfirmed,
	})
}

func (a *API) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.requireScope(w, r, auth.ScopeWalletManagement)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/wallet_history/")
	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	var wallets []*commerce.Wallet
	if id == 0 {
		// Id 0 selects every wallet the caller owns.
		wallets, err = a.entities.ListWallets(r.Context(), principal.User.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
	} else {
		wallet, ok := a.walletForPrincipal(w, r, principal, id)
		if !ok {
			return
		}
		wallets = []*commerce.Wallet{wallet}
	}

	txs := []coins.Tx{}
	for _, wallet := range wallets {
		provider, err := a.coins.Get(wallet.Currency)
		if err != nil {
			if id != 0 {
				writeError(w, r, http.StatusBadRequest, "unsupported currency")
				return
			}
			continue
		}
		history, err := provider.History(r.Context(), wallet.XPub)
		if err != nil {
			writeError(w, r, http.StatusBadGateway, "history provider unavailable")
			return
		}
		txs = append(txs, history...)
	}
	writeJSON(w, http.StatusOK, txs)
}

// ownedWallet resolves the path segment to a wallet the caller may access
// (owner or superuser) or writes the error response itself.
func (a *API) ownedWallet(w http.ResponseWriter, r *http.Request, rawID string) (*commerce.Wallet, bool) {
	principal, ok := a.requireScope(w, r, auth.ScopeWalletManagement)
	if !ok {
		return nil, false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return nil, false
	}
	return a.walletForPrincipal(w, r, principal, id)
}

func (a *API) walletForPrincipal(w http.ResponseWriter, r *http.Request, principal auth.Principal, id int64) (*commerce.Wallet, bool) {
	wallet, err := a.entities.GetWallet(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return nil, false
	}
	if wallet.UserID != principal.User.ID && !principal.User.IsSuperuser {
		handleDomainError(w, r, auth.ErrForbidden)
		return nil, false
	}
	return wallet, true
}

func (a *API) handleRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	currency := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("currency")))
	if currency == "" {
		currency = "btc"
	}
	fiat := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("fiat")))
	if fiat == "" {
		fiat = "USD"
	}
	provider, err := a.coins.Get(currency)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unsupported currency")
		return
	}
	rate, err := provider.Rate(r.Context(), fiat)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "rate provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"currency": currency,
		"fiat":     fiat,
		"rate":     rate,
	})
}
