/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

var homePage = template.Must(template.New("home").Parse(`<!DOCTYPE html><html lang="en"><head>
<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>bankbox</title></head><body>
<h1>bankbox v{{.Version}}</h1>
{{- if .Game}}
<p>Game <code>{{.Game}}</code></p>
<p><img src="{{.Prefix}}/api/games/{{.Game}}/qr" alt="QR code for this game" width="320" height="320"></p>
<p>State: <a href="{{.Prefix}}/api/games/{{.Game}}/state">{{.Prefix}}/api/games/{{.Game}}/state</a></p>
{{- else}}
<p>Open games: <a href="{{.Prefix}}/api/games">{{.Prefix}}/api/games</a></p>
{{- end}}
<p>Live updates: <code>{{.Prefix}}/ws</code></p>
</body></html>
`))

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		err := homePage.Execute(w, struct {
			Version string
			Prefix  string
			Game    string
		}{
			Version: releaseVersion,
			Prefix:  cfg.prefix,
			Game:    r.URL.Query().Get("game"),
		})
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page to %s in %s",
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /

User-agent: *
Disallow: /api/`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
