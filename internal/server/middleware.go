package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/flow"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"

	headerRequestID = "X-Request-ID"
	headerSignature = "X-Webhook-Signature"
	claimBodySHA256 = "body_sha256"

	maxWebhookBytes = 1 << 20
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		requestID, _ := r.Context().Value(contextKeyRequestID).(string)
		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  requestID,
		}).Info("http request")
	})
}

// VerifyWebhook authenticates provider deliveries. Providers with a JWKS URL
// send a bearer JWT signed by a key in that set and bound to the body;
// providers with a shared secret send the hex HMAC-SHA256 of the body.
// Anything else is rejected.
func (s *Service) VerifyWebhook(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerID := flow.Param(r.Context(), "providerID")
		logger := s.logger.WithField("provider_id", providerID)

		p, ok := s.providers.Provider(providerID)
		if !ok {
			logger.Warn("webhook for unknown provider")
			s.writeError(w, http.StatusNotFound, "unknown provider")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			logger.WithError(err).Warn("failed to read webhook body")
			s.writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		switch {
		case p.Settings.JWKSURL != "":
			err = s.verifyJWT(r, body, p.Settings.JWKSURL)
		case p.Settings.WebhookSecret != "":
			err = verifySignature(body, r.Header.Get(headerSignature), p.Settings.WebhookSecret)
		default:
			err = errUnsigned
		}
		if err != nil {
			s.metrics.IncWebhook(providerID, "unauthorized")
			logger.WithError(err).Warn("rejected unauthenticated webhook")
			s.writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// verifyJWT checks the bearer token against the provider's JWKS. The token
// must expire and must carry the hex SHA-256 of the body in body_sha256, so a
// captured token cannot be replayed with a different payload.
func (s *Service) verifyJWT(r *http.Request, body []byte, jwksURL string) error {
	if s.keySets == nil {
		return errNoJWKS
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return errUnsigned
	}

	set, err := s.keySets.Lookup(r.Context(), jwksURL)
	if err != nil {
		return err
	}

	token, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
	)
	if err != nil {
		return err
	}

	if _, ok := token.Expiration(); !ok {
		return errNoExpiry
	}

	var claimed string
	if err := token.Get(claimBodySHA256, &claimed); err != nil {
		return errBodyMismatch
	}
	want, err := hex.DecodeString(claimed)
	if err != nil {
		return errBodyMismatch
	}
	sum := sha256.Sum256(body)
	if !hmac.Equal(want, sum[:]) {
		return errBodyMismatch
	}

	return nil
}

func verifySignature(body []byte, signature, secret string) error {
	if signature == "" {
		return errUnsigned
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return errBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errBadSignature
	}

	return nil
}

// Sign returns the signature header value for body, as providers compute it.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			// 308 keeps the method and body for POSTs
			http.Redirect(w, r, newURL.String(), http.StatusPermanentRedirect)
			return
		}

		next.ServeHTTP(w, r)
	})
}
