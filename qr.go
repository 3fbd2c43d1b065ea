package main

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Seednode/bankbox/ledger"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// joinURL is the link players scan to open a game from the home page.
func joinURL(cfg *Config, r *http.Request, sessionID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     cfg.prefix + "/",
		RawQuery: url.Values{"game": []string{sessionID}}.Encode(),
	}

	return u.String()
}

func serveGameQR(cfg *Config, svc *ledger.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		session, err := svc.Session(r.Context(), p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		png, err := qrcode.Encode(joinURL(cfg, r, session.ID), qrcode.Medium, qrSize)
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)
		corsHeaders(w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: QR code for game %s (%s) to %s in %s",
			session.ID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}
