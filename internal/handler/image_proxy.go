package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	maxImageBytes     = 5 << 20
	maxImageRedirects = 5
)

// allowedImageHost reports whether host equals or is a subdomain of one of
// the configured suffixes.
func (h *Handler) allowedImageHost(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range h.config.ImageAllowedHosts {
		suffix = strings.ToLower(strings.TrimPrefix(suffix, "."))
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// handleImageProxy relays a profile photo so browsers load it from our origin.
// checkImageRedirect applies the host allowlist to every redirect hop.
func (h *Handler) checkImageRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxImageRedirects {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	if req.URL.Scheme != "https" && req.URL.Scheme != "http" {
		return fmt.Errorf("redirect to scheme %q", req.URL.Scheme)
	}
	if !h.allowedImageHost(req.URL.Hostname()) {
		return fmt.Errorf("redirect to host %q not allowed", req.URL.Hostname())
	}
	return nil
}

func (h *Handler) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		h.writeError(w, r, badRequest("ErrImageURLRequired", nil))
		return
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		h.writeError(w, r, badRequest("ErrImageURLRequired", nil))
		return
	}
	if !h.allowedImageHost(u.Hostname()) {
		h.writeError(w, r, badRequest("ErrImageHostNotAllowed", map[string]any{"Host": u.Hostname()}))
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.images.Do(req)
	if err != nil {
		h.writeError(w, r, imageFetchError(err))
		return
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK {
		h.writeError(w, r, imageFetchError(fmt.Errorf("upstream status %d", resp.StatusCode)))
		return
	}
	if !strings.HasPrefix(ct, "image/") {
		h.writeError(w, r, imageFetchError(fmt.Errorf("unexpected content type %q", ct)))
		return
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxImageBytes)); err != nil && !errors.Is(err, r.Context().Err()) {
		slog.Warn("image proxy copy failed", "host", u.Hostname(), "error", err)
	}
}

func imageFetchError(err error) error {
	return &requestError{status: http.StatusBadGateway, msgID: "ErrImageFetch", err: err}
}
