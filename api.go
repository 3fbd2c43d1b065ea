/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Seednode/bankbox/ledger"
	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
)

const maxBodySize = 1 << 16

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	errBadRequest = &apiError{Code: "invalid_request", Message: "request body must be a single JSON object with known fields"}
	errBadStatus  = &apiError{Code: "invalid_status", Message: "status must be \"active\" or \"ended\""}
	errInternal   = &apiError{Code: "internal", Message: "internal server error"}
)

func asLedgerError(err error) (*ledger.Error, bool) {
	var le *ledger.Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindAuthorization:
		return http.StatusForbidden
	case ledger.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func apiHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	corsHeaders(w)
}

// corsHeaders opens the API to clients served from another origin. It must
// run after securityHeaders, whose resource policy it relaxes.
func corsHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
}

// servePreflight answers CORS preflight requests for any route that exists.
func servePreflight(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, cfg.prefix+"/api/") {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		corsHeaders(w)
		w.Header().Set("Access-Control-Allow-Methods", w.Header().Get("Allow"))
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(cfg *Config, w http.ResponseWriter, r *http.Request, status int, v any, errs chan<- error) {
	startTime := time.Now()

	data, err := json.Marshal(v)
	if err != nil {
		errs <- fmt.Errorf("encode response: %w", err)

		status, data = http.StatusInternalServerError, []byte(`{"code":"internal","message":"internal server error"}`)
	}
	data = append(data, '\n')

	apiHeaders(cfg, w)
	w.WriteHeader(status)

	written, err := w.Write(data)
	if err != nil {
		errs <- err

		return
	}

	logf(cfg, "SERVE: %s %s -> %d (%s) to %s in %s",
		r.Method,
		r.URL.Path,
		status,
		humanReadableSize(int64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

// writeError turns ledger errors into their HTTP status. Anything else is
// logged and reported as a bare 500.
func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error, errs chan<- error) {
	if le, ok := asLedgerError(err); ok {
		logf(cfg, "LEDGER: %s %s rejected: %s", r.Method, r.URL.Path, le.Code)

		writeJSON(cfg, w, r, statusFor(le.Kind), apiError{Code: le.Code, Message: le.Message}, errs)

		return
	}

	errs <- fmt.Errorf("%s %s: %w", r.Method, r.URL.Path, err)

	writeJSON(cfg, w, r, http.StatusInternalServerError, errInternal, errs)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}

	return nil
}

// readJSON decodes the body into v, answering 400 itself on failure.
func readJSON(cfg *Config, w http.ResponseWriter, r *http.Request, v any, errs chan<- error) bool {
	if err := decodeJSON(w, r, v); err != nil {
		logf(cfg, "SERVE: Bad request body for %s %s from %s: %v", r.Method, r.URL.Path, realIP(r), err)

		writeJSON(cfg, w, r, http.StatusBadRequest, errBadRequest, errs)

		return false
	}
	return true
}

type createGameRequest struct {
	Name            string           `json:"name"`
	StartingBalance *decimal.Decimal `json:"starting_balance"`
}

func serveCreateGame(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createGameRequest
		if !readJSON(cfg, w, r, &req, errs) {
			return
		}

		session, err := svc.CreateSession(r.Context(), ledger.CreateSessionInput{
			Name:            req.Name,
			StartingBalance: req.StartingBalance,
		})
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		logf(cfg, "LEDGER: Created game %s (%q) for %s", session.ID, session.Name, realIP(r))

		writeJSON(cfg, w, r, http.StatusCreated, session, errs)
	}
}

func serveListGames(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		status := ledger.StatusActive

		if v := r.URL.Query().Get("status"); v != "" {
			var err error

			status, err = ledger.ParseStatus(v)
			if err != nil {
				writeJSON(cfg, w, r, http.StatusBadRequest, errBadStatus, errs)

				return
			}
		}

		sessions, err := svc.Sessions(r.Context(), status)
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, sessions, errs)
	}
}

func serveGame(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		session, err := svc.Session(r.Context(), p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, session, errs)
	}
}

func serveGameState(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		state, err := svc.State(r.Context(), p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, state, errs)
	}
}

func serveGamePlayers(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		accounts, err := svc.Accounts(r.Context(), p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, accounts, errs)
	}
}

func serveGameTransactions(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		transfers, err := svc.Transfers(r.Context(), p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, transfers, errs)
	}
}

type endGameRequest struct {
	PlayerID string `json:"player_id"`
}

func serveEndGame(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req endGameRequest
		if !readJSON(cfg, w, r, &req, errs) {
			return
		}

		session, err := svc.EndSession(r.Context(), req.PlayerID)
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		logf(cfg, "LEDGER: Game %s ended by %s", session.ID, req.PlayerID)

		writeJSON(cfg, w, r, http.StatusOK, session, errs)
	}
}

type joinGameRequest struct {
	GameID string `json:"game_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

func serveJoinGame(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req joinGameRequest
		if !readJSON(cfg, w, r, &req, errs) {
			return
		}

		role := ledger.RolePlayer
		if req.Role != "" {
			var err error

			role, err = ledger.ParseRole(req.Role)
			if err != nil {
				writeError(cfg, w, r, err, errs)

				return
			}
		}

		account, err := svc.JoinSession(r.Context(), ledger.JoinSessionInput{
			SessionID: req.GameID,
			Name:      req.Name,
			Role:      role,
		})
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		logf(cfg, "LEDGER: %s %q joined game %s", account.Role, account.Name, account.SessionID)

		writeJSON(cfg, w, r, http.StatusCreated, account, errs)
	}
}

func servePlayer(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		account, err := svc.Account(r.Context(), p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, account, errs)
	}
}

type transactionRequest struct {
	GameID       string          `json:"game_id"`
	FromPlayerID string          `json:"from_player_id"`
	ToPlayerID   string          `json:"to_player_id"`
	Amount       decimal.Decimal `json:"amount"`
}

func serveCreateTransaction(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req transactionRequest
		if !readJSON(cfg, w, r, &req, errs) {
			return
		}

		result, err := svc.Transfer(r.Context(), ledger.TransferInput{
			SessionID:     req.GameID,
			FromAccountID: req.FromPlayerID,
			ToAccountID:   req.ToPlayerID,
			Amount:        req.Amount,
		})
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		logf(cfg, "LEDGER: %s moved %s from %q to %q in game %s",
			result.Transfer.ID,
			result.Transfer.Amount,
			result.From.Name,
			result.To.Name,
			result.Transfer.SessionID,
		)

		writeJSON(cfg, w, r, http.StatusCreated, result, errs)
	}
}

func serveTransaction(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		transfer, err := svc.GetTransfer(r.Context(), p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, r, http.StatusOK, transfer, errs)
	}
}

type amendTransactionRequest struct {
	FromPlayerID *string          `json:"from_player_id"`
	ToPlayerID   *string          `json:"to_player_id"`
	Amount       *decimal.Decimal `json:"amount"`
}

func serveUpdateTransaction(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req amendTransactionRequest
		if !readJSON(cfg, w, r, &req, errs) {
			return
		}

		adj, err := svc.UpdateTransfer(r.Context(), p.ByName("id"), ledger.TransferPatch{
			FromAccountID: req.FromPlayerID,
			ToAccountID:   req.ToPlayerID,
			Amount:        req.Amount,
		})
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		logf(cfg, "LEDGER: Amended %s in game %s", adj.Transfer.ID, adj.Transfer.SessionID)

		writeJSON(cfg, w, r, http.StatusOK, adj, errs)
	}
}

func serveDeleteTransaction(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		adj, err := svc.DeleteTransfer(r.Context(), p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		logf(cfg, "LEDGER: Reversed %s in game %s", adj.Transfer.ID, adj.Transfer.SessionID)

		writeJSON(cfg, w, r, http.StatusOK, adj, errs)
	}
}

func registerAPI(cfg *Config, svc *ledger.Service, mux *httprouter.Router, errs chan<- error) {
	mux.GlobalOPTIONS = servePreflight(cfg)

	mux.POST(cfg.prefix+"/api/games", serveCreateGame(cfg, svc, errs))
	mux.GET(cfg.prefix+"/api/games", serveListGames(cfg, svc, errs))
	mux.PUT(cfg.prefix+"/api/games/end", serveEndGame(cfg, svc, errs))
	mux.GET(cfg.prefix+"/api/games/:id", serveGame(cfg, svc, errs))
	mux.GET(cfg.prefix+"/api/games/:id/state", serveGameState(cfg, svc, errs))
	mux.GET(cfg.prefix+"/api/games/:id/players", serveGamePlayers(cfg, svc, errs))
	mux.GET(cfg.prefix+"/api/games/:id/transactions", serveGameTransactions(cfg, svc, errs))
	mux.GET(cfg.prefix+"/api/games/:id/qr", serveGameQR(cfg, svc, errs))

	mux.POST(cfg.prefix+"/api/players", serveJoinGame(cfg, svc, errs))
	mux.GET(cfg.prefix+"/api/players/:id", servePlayer(cfg, svc, errs))

	mux.POST(cfg.prefix+"/api/transactions", serveCreateTransaction(cfg, svc, errs))
	mux.GET(cfg.prefix+"/api/transactions/:id", serveTransaction(cfg, svc, errs))
	mux.PATCH(cfg.prefix+"/api/transactions/:id", serveUpdateTransaction(cfg, svc, errs))
	mux.DELETE(cfg.prefix+"/api/transactions/:id", serveDeleteTransaction(cfg, svc, errs))
}
