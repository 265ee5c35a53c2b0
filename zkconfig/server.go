package zkconfig

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/anondonation/log"
)

// NewAssetServer serves the artifacts in dir with the layout HTTPFetcher
// expects. Unknown paths get a plain 404, never a fallback page.
func NewAssetServer(dir string) (http.Handler, error) {
	fetcher, err := NewDirFetcher(dir)
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		MaxAge:         300,
	}).Handler)
	r.Use(middleware.Recoverer)
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	serve := func(w http.ResponseWriter, r *http.Request) {
		p, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
		if err != nil {
			http.Error(w, "malformed path", http.StatusBadRequest)
			return
		}
		data, err := fetcher.Fetch(r.Context(), p)
		switch {
		case errors.Is(err, ErrAssetNotFound):
			http.Error(w, "asset not found", http.StatusNotFound)
			return
		case err != nil:
			log.Warnw("failed to serve asset", "path", p, "error", err.Error())
			http.Error(w, "asset unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if _, err := w.Write(data); err != nil {
			log.Warnw("failed to write asset response", "path", p, "error", err.Error())
		}
	}
	r.Get("/zkir/*", serve)
	r.Get("/keys/*", serve)
	return r, nil
}
