package main

import (
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/mastercactapus/grblhc/grbl"
	"github.com/sirupsen/logrus"
)

// Controller is the part of *grbl.Controller the API drives.
type Controller interface {
	Connect(path string) error
	Disconnect() error
	Reset() error
	Abort()
	Cleanup() error

	Status() error
	Home() error
	Unlock() error
	Stop() error
	Resume() error
	Command(text string) error
	Stream(program []byte, name string) error

	Jobs() []grbl.JobEntry
	Current() (string, bool)
	State() grbl.ControllerState
	LastStatus() grbl.Status
	LastActivity() time.Time
	States() <-chan grbl.Status
}

type api struct {
	http.Handler
	c       Controller
	port    string
	dataDir string
	sse     *sse.Server
	log     logrus.FieldLogger
}

func newAPI(c Controller, port, dir string, logger logrus.FieldLogger) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		c:       c,
		port:    port,
		dataDir: dir,
		log:     logger,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}

	fs := http.FileServer(http.Dir(dir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	ar := r.PathPrefix("/api").Subrouter()
	ar.HandleFunc("/connect", a.connect).Methods("POST")
	ar.HandleFunc("/disconnect", a.action("disconnect", c.Disconnect)).Methods("POST")
	ar.HandleFunc("/reset", a.action("reset", c.Reset)).Methods("POST")
	ar.HandleFunc("/cleanup", a.action("cleanup", c.Cleanup)).Methods("POST")
	ar.HandleFunc("/abort", a.action("abort", func() error { c.Abort(); return nil })).Methods("POST")
	ar.HandleFunc("/status", a.action("status", c.Status)).Methods("POST")
	ar.HandleFunc("/home", a.action("home", c.Home)).Methods("POST")
	ar.HandleFunc("/unlock", a.action("unlock", c.Unlock)).Methods("POST")
	ar.HandleFunc("/stop", a.action("stop", c.Stop)).Methods("POST")
	ar.HandleFunc("/resume", a.action("resume", c.Resume)).Methods("POST")
	ar.HandleFunc("/command", a.command).Methods("POST")
	ar.HandleFunc("/stream", a.stream).Methods("POST")
	ar.HandleFunc("/stream/{file:.+}", a.streamFile).Methods("POST")
	ar.HandleFunc("/jobs", a.jobs).Methods("GET")
	ar.HandleFunc("/state", a.state).Methods("GET")

	r.PathPrefix("/events/").Handler(a.sse)
	go func() {
		for state := range c.States() {
			data, err := json.Marshal(state)
			if err != nil {
				a.log.WithError(err).Error("marshal json")
				continue
			}
			a.sse.SendMessage("/events/state", sse.SimpleMessage(string(data)))
		}
	}()

	return a
}

// consoleHook forwards device exchange lines to /events/console.
type consoleHook struct{ sse *sse.Server }

func (a *api) consoleHook() logrus.Hook { return consoleHook{sse: a.sse} }

func (consoleHook) Levels() []logrus.Level { return logrus.AllLevels }
func (h consoleHook) Fire(e *logrus.Entry) error {
	if strings.HasPrefix(e.Message, "[ ") {
		h.sse.SendMessage("/events/console", sse.SimpleMessage(e.Message))
	}
	return nil
}

func statusCode(err error) int {
	var rej *grbl.RejectedCommandError
	switch {
	case errors.Is(err, grbl.ErrNotConnected), errors.Is(err, grbl.ErrConnected):
		return http.StatusConflict
	case errors.As(err, &rej):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *api) fail(w http.ResponseWriter, op string, code int, err error) {
	a.log.WithError(err).Error(op)
	http.Error(w, err.Error(), code)
}

func (a *api) action(op string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := fn()
		if err != nil {
			a.fail(w, op, statusCode(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *api) connect(w http.ResponseWriter, req *http.Request) {
	port := req.FormValue("port")
	if port == "" {
		port = a.port
	}
	a.action("connect", func() error { return a.c.Connect(port) })(w, req)
}

func (a *api) command(w http.ResponseWriter, req *http.Request) {
	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		a.fail(w, "read body", http.StatusBadRequest, err)
		return
	}
	err = a.c.Command(string(data))
	if errors.Is(err, grbl.ErrNotConnected) {
		a.fail(w, "command", http.StatusConflict, err)
		return
	}
	if err != nil {
		a.fail(w, "command", http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) queue(w http.ResponseWriter, program []byte, name string) {
	err := a.c.Stream(program, name)
	if errors.Is(err, grbl.ErrNotConnected) {
		a.fail(w, "stream", http.StatusConflict, err)
		return
	}
	if err != nil {
		a.fail(w, "stream", http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) stream(w http.ResponseWriter, req *http.Request) {
	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		a.fail(w, "read body", http.StatusBadRequest, err)
		return
	}
	a.queue(w, data, req.URL.Query().Get("name"))
}

func (a *api) streamFile(w http.ResponseWriter, req *http.Request) {
	file := mux.Vars(req)["file"]
	ok, name := safePath(a.dataDir, file)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	data, err := ioutil.ReadFile(name)
	if os.IsNotExist(err) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		a.fail(w, "read '"+name+"'", http.StatusInternalServerError, err)
		return
	}
	a.queue(w, data, path.Base(file))
}

func (a *api) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.WithError(err).Error("encode")
	}
}

func (a *api) jobs(w http.ResponseWriter, req *http.Request) {
	current, _ := a.c.Current()
	jobs := a.c.Jobs()
	if jobs == nil {
		jobs = []grbl.JobEntry{}
	}
	a.writeJSON(w, struct {
		Current string          `json:"current,omitempty"`
		Jobs    []grbl.JobEntry `json:"jobs"`
	}{current, jobs})
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	a.writeJSON(w, struct {
		State        grbl.ControllerState `json:"state"`
		Status       grbl.Status          `json:"status"`
		LastActivity time.Time            `json:"lastActivity"`
	}{a.c.State(), a.c.LastStatus(), a.c.LastActivity()})
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return false, ""
	}
	dir := string(base)
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.MkdirAll(filepath.Dir(name), 0755)
	if err != nil {
		a.fail(w, "mkdir '"+filepath.Dir(name)+"'", http.StatusInternalServerError, err)
		return
	}
	f, err := os.Create(name)
	if err != nil {
		a.fail(w, "create '"+name+"'", http.StatusInternalServerError, err)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		a.fail(w, "write '"+name+"'", http.StatusInternalServerError, err)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if os.IsNotExist(err) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		a.fail(w, "delete '"+name+"'", http.StatusInternalServerError, err)
		return
	}
}
