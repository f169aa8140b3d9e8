package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// AboutResponse describes the running binary.
type AboutResponse struct {
	Service   string    `json:"service"`
	Device    string    `json:"device,omitempty"`
	NowUTC    string    `json:"now_utc"`
	GoVersion string    `json:"go_version"`
	Build     buildInfo `json:"build"`
}

type buildInfo struct {
	Module   string `json:"module,omitempty"`
	Version  string `json:"version,omitempty"`
	Revision string `json:"revision,omitempty"`
	Modified bool   `json:"modified,omitempty"`
	Time     string `json:"time,omitempty"`
	// Deps lists module versions of the third-party code that talks to
	// hardware or the network.
	Deps map[string]string `json:"deps,omitempty"`
}

var hardwareDeps = []string{
	"github.com/warthog618/go-gpiocdev",
	"github.com/holoplot/go-evdev",
	"go.bug.st/serial",
	"github.com/eclipse/paho.mqtt.golang",
	"github.com/gorilla/websocket",
}

var readBuild = sync.OnceValue(func() buildInfo {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return buildInfo{}
	}
	out := buildInfo{Module: bi.Main.Path, Version: bi.Main.Version}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Revision = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		case "vcs.time":
			out.Time = s.Value
		}
	}
	for _, d := range bi.Deps {
		for _, want := range hardwareDeps {
			if strings.EqualFold(d.Path, want) {
				if out.Deps == nil {
					out.Deps = map[string]string{}
				}
				out.Deps[d.Path] = d.Version
			}
		}
	}
	return out
})

func aboutHandler(status *Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, AboutResponse{
			Service:   serviceName,
			Device:    status.Snapshot(time.Time{}).Device,
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion: runtime.Version(),
			Build:     readBuild(),
		})
	})
}
