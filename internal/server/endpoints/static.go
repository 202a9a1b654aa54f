package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"
)

// CoversEndpoint serves generated cover images from the covers directory
// under GET /covers/.
type CoversEndpoint struct {
	CoversPath string
}

func (e *CoversEndpoint) Route() (string, string, http.HandlerFunc) {
	fs := http.StripPrefix("/covers/", http.FileServer(http.Dir(e.CoversPath)))
	return "GET", "/covers/{path...}", func(w http.ResponseWriter, r *http.Request) {
		if e.CoversPath == "" {
			writeError(w, http.StatusNotFound, "covers directory not configured")
			return
		}
		fs.ServeHTTP(w, r)
	}
}

func (e *CoversEndpoint) RequiresInit() bool { return false }

func (e *CoversEndpoint) Command(_ func() string) *cobra.Command { return nil }
