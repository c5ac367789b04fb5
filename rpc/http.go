package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"autonledger/core"
	"autonledger/crypto"
	"autonledger/native/market"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "AUTON_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32004
	codeConflict       = -32009
	codeInsufficient   = -32012
)

type Server struct {
	node      *core.Node
	authToken string
}

func NewServer(node *core.Node) *Server {
	token := strings.TrimSpace(os.Getenv(authTokenEnv))
	return &Server{
		node:      node,
		authToken: token,
	}
}

func (s *Server) Start(addr string) error {
	slog.Info("starting JSON-RPC server", "addr", addr)
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

// Handler exposes the RPC entry point for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps engine failures onto stable JSON-RPC error codes so
// clients can branch on the failure class instead of parsing messages.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, market.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, id, codeUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, market.ErrAdminMismatch):
		writeError(w, http.StatusBadRequest, id, codeUnauthorized, "admin identity mismatch", err.Error())
	case errors.Is(err, market.ErrAlreadyExists), errors.Is(err, market.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, id, codeConflict, "record already exists", err.Error())
	case errors.Is(err, market.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, id, codeInsufficient, "insufficient balance", err.Error())
	case errors.Is(err, market.ErrContentNotFound), errors.Is(err, market.ErrCreatorNotFound), errors.Is(err, market.ErrConfigNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, "not found", err.Error())
	case errors.Is(err, market.ErrInvalidUsername), errors.Is(err, market.ErrInvalidFeeBps),
		errors.Is(err, market.ErrInvalidPrice), errors.Is(err, market.ErrContentTooLarge):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid parameters", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "operation failed", err.Error())
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}

	switch req.Method {
	case "auton_initializeConfig":
		s.handleInitializeConfig(w, r, &req)
	case "auton_updateConfig":
		s.handleUpdateConfig(w, r, &req)
	case "auton_registerUsername":
		s.handleRegisterUsername(w, r, &req)
	case "auton_initializeCreator":
		s.handleInitializeCreator(w, r, &req)
	case "auton_addContent":
		s.handleAddContent(w, r, &req)
	case "auton_updateProfile":
		s.handleUpdateProfile(w, r, &req)
	case "auton_processPayment":
		s.handleProcessPayment(w, r, &req)
	case "auton_getBalance":
		s.handleGetBalance(w, r, &req)
	case "auton_getConfig":
		s.handleGetConfig(w, r, &req)
	case "auton_getCreator":
		s.handleGetCreator(w, r, &req)
	case "auton_getAccess":
		s.handleGetAccess(w, r, &req)
	case "auton_resolveUsername":
		s.handleResolveUsername(w, r, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

// requireAuth gates mutating methods behind the configured bearer token. With
// no token configured the node is open, which is only appropriate for local
// development.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

func singleParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func decodeBech32(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.AutonPrefix, addr[:]).String()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
