/******************************************************************************
 *
 *  Description :
 *
 *    Runtime profile dumps served at <configured-path>/<profile-name>.
 *    Profile names are those of runtime/pprof.Lookup.
 *
 *****************************************************************************/

package main

import (
	"fmt"
	"net/http"
	"path"
	"runtime/pprof"
	"strings"

	"github.com/mercury-im/mercury/server/logs"
)

var pprofRoot string

// servePprof mounts the profiling handler. Disabled when the path is
// empty or "-".
func servePprof(mux *http.ServeMux, serveAt string) {
	if serveAt == "" || serveAt == "-" {
		return
	}

	pprofRoot = path.Clean("/"+serveAt) + "/"
	mux.HandleFunc(pprofRoot, profileHandler)

	logs.Info.Printf("pprof: profiling info exposed at '%s'", pprofRoot)
}

func profileHandler(wrt http.ResponseWriter, req *http.Request) {
	wrt.Header().Set("X-Content-Type-Options", "nosniff")
	wrt.Header().Set("Content-Type", "text/plain; charset=utf-8")

	name := strings.TrimPrefix(req.URL.Path, pprofRoot)
	profile := pprof.Lookup(name)
	if profile == nil {
		wrt.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(wrt, "unknown profile '%s'\n", name)
		return
	}

	profile.WriteTo(wrt, 2)
}
