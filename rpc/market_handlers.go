package rpc

import (
	"encoding/hex"
	"net/http"
	"strings"

	"autonledger/native/market"
)

type initializeConfigParams struct {
	Caller       string `json:"caller"`
	FeeRateBps   uint32 `json:"feeRateBps"`
	StorageVault string `json:"storageVault"`
}

type updateConfigParams struct {
	Caller       string  `json:"caller"`
	Admin        *string `json:"admin,omitempty"`
	FeeRateBps   *uint32 `json:"feeRateBps,omitempty"`
	StorageVault *string `json:"storageVault,omitempty"`
}

type registerUsernameParams struct {
	Caller   string `json:"caller"`
	Username string `json:"username"`
}

type initializeCreatorParams struct {
	Caller string `json:"caller"`
	Payer  string `json:"payer,omitempty"`
}

type addContentParams struct {
	Caller           string `json:"caller"`
	Creator          string `json:"creator,omitempty"`
	Payer            string `json:"payer,omitempty"`
	Title            string `json:"title"`
	Price            string `json:"price"`
	EncryptedLocator string `json:"encryptedLocator"`
}

type updateProfileParams struct {
	Caller  string `json:"caller"`
	Creator string `json:"creator,omitempty"`
	Profile string `json:"profile"`
}

type processPaymentParams struct {
	Buyer     string `json:"buyer"`
	Creator   string `json:"creator"`
	ContentID uint64 `json:"contentId"`
	Admin     string `json:"admin"`
}

type addressParams struct {
	Address string `json:"address"`
}

type accessParams struct {
	Buyer     string `json:"buyer"`
	ContentID uint64 `json:"contentId"`
}

type usernameParams struct {
	Username string `json:"username"`
}

type configResult struct {
	Admin        string `json:"admin"`
	FeeRateBps   uint32 `json:"feeRateBps"`
	StorageVault string `json:"storageVault"`
}

type usernameResult struct {
	Username string `json:"username"`
	Owner    string `json:"owner"`
}

type contentResult struct {
	ID               uint64 `json:"id"`
	Title            string `json:"title"`
	Price            string `json:"price"`
	EncryptedLocator string `json:"encryptedLocator"`
}

type creatorResult struct {
	Owner         string          `json:"owner"`
	NextContentID uint64          `json:"nextContentId"`
	Content       []contentResult `json:"content"`
	Profile       string          `json:"profile"`
	StorageSize   uint64          `json:"storageSize"`
}

type receiptResult struct {
	Buyer     string `json:"buyer"`
	ContentID uint64 `json:"contentId"`
	Creator   string `json:"creator"`
	CreatedAt int64  `json:"createdAt"`
}

type paymentResult struct {
	Receipt      receiptResult `json:"receipt"`
	Total        string        `json:"total"`
	Fee          string        `json:"fee"`
	CreatorShare string        `json:"creatorShare"`
}

type balanceResult struct {
	Address  string `json:"address"`
	Balance  string `json:"balance"`
	Username string `json:"username,omitempty"`
	Nonce    uint64 `json:"nonce"`
}

func formatConfig(cfg *market.ProtocolConfig) configResult {
	return configResult{
		Admin:        formatAddress(cfg.Admin),
		FeeRateBps:   cfg.FeeRateBps,
		StorageVault: formatAddress(cfg.StorageVault),
	}
}

func formatCreator(acct *market.CreatorAccount) creatorResult {
	result := creatorResult{
		Owner:         formatAddress(acct.Owner),
		NextContentID: acct.NextContentID,
		Content:       make([]contentResult, len(acct.Content)),
		Profile:       acct.Profile,
		StorageSize:   acct.StorageSize,
	}
	for i, item := range acct.Content {
		result.Content[i] = contentResult{
			ID:               item.ID,
			Title:            item.Title,
			Price:            bigString(item.Price),
			EncryptedLocator: hex.EncodeToString(item.EncryptedLocator),
		}
	}
	return result
}

func formatReceipt(receipt *market.AccessReceipt) receiptResult {
	return receiptResult{
		Buyer:     formatAddress(receipt.Buyer),
		ContentID: receipt.ContentID,
		Creator:   formatAddress(receipt.Creator),
		CreatedAt: receipt.CreatedAt,
	}
}

func (s *Server) handleInitializeConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params initializeConfigParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	vault := caller
	if strings.TrimSpace(params.StorageVault) != "" {
		vault, err = decodeBech32(params.StorageVault)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid storage vault address", err.Error())
			return
		}
	}
	cfg, err := s.node.InitializeConfig(caller, params.FeeRateBps, vault)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatConfig(cfg))
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params updateConfigParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	update := market.ConfigUpdate{FeeRateBps: params.FeeRateBps}
	if params.Admin != nil {
		admin, err := decodeBech32(*params.Admin)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid admin address", err.Error())
			return
		}
		update.Admin = &admin
	}
	if params.StorageVault != nil {
		vault, err := decodeBech32(*params.StorageVault)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid storage vault address", err.Error())
			return
		}
		update.StorageVault = &vault
	}
	cfg, err := s.node.UpdateConfig(caller, update)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatConfig(cfg))
}

func (s *Server) handleRegisterUsername(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params registerUsernameParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	rec, err := s.node.RegisterUsername(caller, params.Username)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, usernameResult{Username: rec.Username, Owner: formatAddress(rec.Owner)})
}

func (s *Server) handleInitializeCreator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params initializeCreatorParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	payer := caller
	if strings.TrimSpace(params.Payer) != "" {
		payer, err = decodeBech32(params.Payer)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payer address", err.Error())
			return
		}
	}
	acct, err := s.node.InitializeCreator(caller, payer)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatCreator(acct))
}

func (s *Server) handleAddContent(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params addContentParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	creator := caller
	if strings.TrimSpace(params.Creator) != "" {
		creator, err = decodeBech32(params.Creator)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid creator address", err.Error())
			return
		}
	}
	payer := caller
	if strings.TrimSpace(params.Payer) != "" {
		payer, err = decodeBech32(params.Payer)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payer address", err.Error())
			return
		}
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	locator, err := hex.DecodeString(strings.TrimPrefix(params.EncryptedLocator, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "encryptedLocator must be hex encoded", err.Error())
		return
	}
	item, err := s.node.AddContent(caller, creator, payer, params.Title, price, locator)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contentResult{
		ID:               item.ID,
		Title:            item.Title,
		Price:            bigString(item.Price),
		EncryptedLocator: hex.EncodeToString(item.EncryptedLocator),
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params updateProfileParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	creator := caller
	if strings.TrimSpace(params.Creator) != "" {
		creator, err = decodeBech32(params.Creator)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid creator address", err.Error())
			return
		}
	}
	acct, err := s.node.UpdateProfile(caller, creator, params.Profile)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatCreator(acct))
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params processPaymentParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	buyer, err := decodeBech32(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	creator, err := decodeBech32(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid creator address", err.Error())
		return
	}
	admin, err := decodeBech32(params.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid admin address", err.Error())
		return
	}
	receipt, breakdown, err := s.node.ProcessPayment(buyer, creator, params.ContentID, admin)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, paymentResult{
		Receipt:      formatReceipt(receipt),
		Total:        bigString(breakdown.Total),
		Fee:          bigString(breakdown.Fee),
		CreatorShare: bigString(breakdown.CreatorShare),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address:  params.Address,
		Balance:  bigString(account.Balance),
		Username: account.Username,
		Nonce:    account.Nonce,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	cfg, ok, err := s.node.GetConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load config", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "protocol config not initialised", nil)
		return
	}
	writeResult(w, req.ID, formatConfig(cfg))
}

func (s *Server) handleGetCreator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	owner, err := decodeBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	acct, ok, err := s.node.GetCreator(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load creator", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "creator account not found", nil)
		return
	}
	writeResult(w, req.ID, formatCreator(acct))
}

func (s *Server) handleGetAccess(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accessParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	buyer, err := decodeBech32(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	receipt, ok, err := s.node.GetAccess(buyer, params.ContentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load receipt", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "no access receipt for pair", nil)
		return
	}
	writeResult(w, req.ID, formatReceipt(receipt))
}

func (s *Server) handleResolveUsername(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params usernameParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	rec, ok, err := s.node.ResolveUsername(params.Username)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "username not registered", nil)
		return
	}
	writeResult(w, req.ID, usernameResult{Username: rec.Username, Owner: formatAddress(rec.Owner)})
}
