package web

import (
	"encoding/json"
	"net/http"

	"ratchet/pkg/engine"
)

// userID resolves the caller's session identity from the X-User-ID header,
// falling back to a single shared session for one-operator deployments.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, res engine.OpResult) {
	status := http.StatusOK
	if res.Status != "success" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// resolveEngine fetches or lazily constructs the caller's engine. A nil return
// means the response is already written.
func resolveEngine(w http.ResponseWriter, r *http.Request, controller AppController) *engine.Engine {
	e, err := controller.Engines().Get(userID(r))
	if err != nil {
		controller.Logger().LogError("web: engine for user %s: %v", userID(r), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "session initialization failed"})
		return nil
	}
	return e
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// opHandler adapts a no-argument engine operation into an endpoint.
func opHandler(controller AppController, op func(*engine.Engine) engine.OpResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		e := resolveEngine(w, r, controller)
		if e == nil {
			return
		}
		writeResult(w, op(e))
	}
}

func statusHandler(controller AppController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		e := resolveEngine(w, r, controller)
		if e == nil {
			return
		}
		writeJSON(w, http.StatusOK, e.GetStatus())
	}
}

func buyHandler(controller AppController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			Qty     float64 `json:"qty"`
			IsQuote bool    `json:"is_quote"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "malformed request body"})
				return
			}
		}
		e := resolveEngine(w, r, controller)
		if e == nil {
			return
		}
		writeResult(w, e.ManualBuy(req.Qty, req.IsQuote))
	}
}

func sellHandler(controller AppController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			Qty float64 `json:"qty"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "malformed request body"})
				return
			}
		}
		e := resolveEngine(w, r, controller)
		if e == nil {
			return
		}
		writeResult(w, e.ManualSell(req.Qty))
	}
}

func settingsHandler(controller AppController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var values map[string]string
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "malformed request body"})
			return
		}
		if len(values) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "no settings provided"})
			return
		}
		e := resolveEngine(w, r, controller)
		if e == nil {
			return
		}
		writeResult(w, e.UpdateSettings(values))
	}
}

func backtestHandler(controller AppController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			Variant string `json:"variant"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "malformed request body"})
				return
			}
		}
		e := resolveEngine(w, r, controller)
		if e == nil {
			return
		}
		result, err := e.Backtest(req.Variant)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"status": "error", "message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// registerChatHandler binds the caller's session to a Telegram chat so alerts
// reach their own conversation instead of the default one.
func registerChatHandler(controller AppController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			ChatID int64 `json:"chat_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "malformed request body"})
			return
		}
		if req.ChatID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "chat_id is required"})
			return
		}
		controller.Notifications().RegisterChat(userID(r), req.ChatID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "chat registered"})
	}
}

// disconnectHandler tears down the caller's session entirely. Unlike stop, the
// data feed does not survive; the next request builds a fresh engine.
func disconnectHandler(controller AppController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		if _, ok := controller.Engines().Peek(userID(r)); !ok {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"status": "error", "message": "no active session"})
			return
		}
		controller.Engines().Remove(userID(r))
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "disconnected"})
	}
}
