// Package sakuragi serves an HTML status page of the latest snapshot.
package sakuragi

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/sim"
)

//go:embed index.html
var templates embed.FS

type Server struct {
	latest func() sim.Snapshot
	t      *template.Template
	sm     *http.ServeMux
}

// New serves the snapshot latest returns at the time of each request.
func New(latest func() sim.Snapshot) *Server {
	s := &Server{
		latest: latest,
		sm:     http.NewServeMux(),
	}
	s.t = template.Must(template.New("index").Funcs(sprig.FuncMap()).Funcs(template.FuncMap{
		"aspectClass": func(a aspect.Aspect) string {
			switch {
			case a == aspect.Stop:
				return "stop"
			case a < aspect.Approach1:
				return "restricted"
			case a < aspect.Clear1:
				return "caution"
			default:
				return "clear"
			}
		},
		"trainsIn": func(ts []sim.TrainSnapshot, section int) []int {
			var res []int
			for _, t := range ts {
				for _, i := range t.Route {
					if i == section {
						res = append(res, t.ID)
						break
					}
				}
			}
			return res
		},
	}).ParseFS(templates, "*.html"))
	s.sm.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.t.ExecuteTemplate(w, "index", map[string]interface{}{
		"s":   s.latest(),
		"now": time.Now().Format("15:04:05"),
	})
	if err != nil {
		zap.S().Warnw("sakuragi: render index", "err", err)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.sm.ServeHTTP(w, r)
}
