package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-API-Key"

// requireAPIKey authenticates private API requests by HMAC-hashing the
// provided key with the server pepper, looking the hash up, and performing a
// constant-time comparison to prevent timing attacks.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			respondError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		mac := hmac.New(sha256.New, h.pepper)
		mac.Write([]byte(key))
		sum := mac.Sum(nil)

		info, err := h.apikeys.FindByHash(r.Context(), hex.EncodeToString(sum))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already succeeded: the stored hash could differ
		// from what we computed if the repository returns a stale/wrong row.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(sum, stored) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := zctx.With(r.Context(), zap.String("api_key_name", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
