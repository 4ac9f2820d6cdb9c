package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	. "qgrid/grid_world"
	"qgrid/reinforcement"
	"qgrid/server/fastview"
	"qgrid/status_text"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const shutdownGracePeriod = 5 * time.Second

// Server exposes one session over http: JSON commands and state, plus a websocket
// that streams snapshots. It serves no pages; views are clients of the JSON api.
type Server struct {
	addr    string
	session *Session
	router  *mux.Router
}

func NewServer(addr string, session *Session) *Server {
	server := &Server{
		addr:    addr,
		session: session,
		router:  mux.NewRouter(),
	}
	server.routes()
	return server
}

func (server *Server) routes() {
	r := server.router
	r.HandleFunc("/state", server.getState).Methods(http.MethodGet)
	r.HandleFunc("/values", server.getValues).Methods(http.MethodGet)
	r.HandleFunc("/step", server.postStep).Methods(http.MethodPost)
	r.HandleFunc("/episode", server.postEpisode).Methods(http.MethodPost)
	r.HandleFunc("/train", server.postTrain).Methods(http.MethodPost)
	r.HandleFunc("/train/cancel", server.postCancelTraining).Methods(http.MethodPost)
	r.HandleFunc("/penalties/shuffle", server.postShufflePenalties).Methods(http.MethodPost)
	r.HandleFunc("/penalties/clear", server.postClearPenalties).Methods(http.MethodPost)
	r.HandleFunc("/penalties/toggle", server.postTogglePenalty).Methods(http.MethodPost)
	r.HandleFunc("/language", server.postLanguage).Methods(http.MethodPost)
	r.HandleFunc("/language/toggle", server.postToggleLanguage).Methods(http.MethodPost)
	r.HandleFunc("/languages", server.getLanguages).Methods(http.MethodGet)
	r.HandleFunc("/ws", server.serveWebsocket).Methods(http.MethodGet)
}

func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve runs the session and the http listener until @ctx is cancelled or either fails.
func (server *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.session.Run(groupCtx)
	})
	group.Go(func() error {
		log.Printf("[SERVER] [INFO] listening on %s", server.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// commandResponse is the reply to every command: its status and the resulting state.
type commandResponse struct {
	Status reinforcement.StatusEvent `json:"status"`
	State  Snapshot                  `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[SERVER] [ERROR] encoding response: %v", err)
	}
}

// writeError maps domain errors to http status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrTrainingInProgress):
		code = http.StatusConflict
	case errors.Is(err, ErrNoTraining):
		code = http.StatusNotFound
	case errors.Is(err, ErrOutOfBounds),
		errors.Is(err, ErrProtectedCell),
		errors.Is(err, status_text.ErrUnknownLanguage),
		errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		log.Printf("[SERVER] [ERROR] %v", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

// epsilonParam reads the optional ?epsilon= override.
func epsilonParam(r *http.Request, defaultVal float64) (float64, error) {
	raw := r.URL.Query().Get("epsilon")
	if raw == "" {
		return defaultVal, nil
	}
	eps, err := strconv.ParseFloat(raw, 64)
	if err != nil || eps < 0 || eps > 1 {
		return 0, fmt.Errorf("%w: epsilon %q must be a number in [0,1]", errBadRequest, raw)
	}
	return eps, nil
}

func (server *Server) reply(w http.ResponseWriter, status reinforcement.StatusEvent, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Status: status, State: server.session.Snapshot()})
}

func (server *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, server.session.Snapshot())
}

// getValues returns the full action-value table, one row of four values per state.
func (server *Server) getValues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, server.session.Values())
}

func (server *Server) postStep(w http.ResponseWriter, r *http.Request) {
	eps, err := epsilonParam(r, server.session.Config().EpsilonStep())
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := server.session.Step(r.Context(), eps)
	server.reply(w, status, err)
}

func (server *Server) postEpisode(w http.ResponseWriter, r *http.Request) {
	eps, err := epsilonParam(r, server.session.Config().EpsilonEpisode())
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := server.session.Episode(r.Context(), eps)
	server.reply(w, status, err)
}

// postTrain starts a training job and replies 202 with the job; progress is
// visible through /state and the websocket.
func (server *Server) postTrain(w http.ResponseWriter, r *http.Request) {
	eps, err := epsilonParam(r, server.session.Config().EpsilonTrain())
	if err != nil {
		writeError(w, err)
		return
	}
	episodes := 0
	if raw := r.URL.Query().Get("episodes"); raw != "" {
		if episodes, err = strconv.Atoi(raw); err != nil || episodes < 0 {
			writeError(w, fmt.Errorf("%w: episodes %q must be a non-negative integer", errBadRequest, raw))
			return
		}
	}

	job, err := server.session.StartTraining(eps, episodes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (server *Server) postCancelTraining(w http.ResponseWriter, r *http.Request) {
	id, err := server.session.CancelTraining()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cancelled": id.String()})
}

func (server *Server) postShufflePenalties(w http.ResponseWriter, r *http.Request) {
	status, err := server.session.ShufflePenalties(r.Context())
	server.reply(w, status, err)
}

func (server *Server) postClearPenalties(w http.ResponseWriter, r *http.Request) {
	status, err := server.session.ClearPenalties(r.Context())
	server.reply(w, status, err)
}

func (server *Server) postTogglePenalty(w http.ResponseWriter, r *http.Request) {
	var cell Coordinate
	if err := json.NewDecoder(r.Body).Decode(&cell); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	status, err := server.session.TogglePenalty(r.Context(), cell)
	server.reply(w, status, err)
}

func (server *Server) postLanguage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lang string `json:"lang"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	status, err := server.session.SetLanguage(r.Context(), body.Lang)
	server.reply(w, status, err)
}

func (server *Server) postToggleLanguage(w http.ResponseWriter, r *http.Request) {
	status, err := server.session.ToggleLanguage(r.Context())
	server.reply(w, status, err)
}

func (server *Server) getLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, status_text.Languages())
}

// serveWebsocket streams snapshots to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := server.session.Hub().Subscribe()
	defer unsubscribe()

	cli, err := fastview.NewClient(updates, w, r)
	if err != nil {
		log.Printf("[SERVER] [ERROR] %v", err)
		return
	}
	if err := cli.Sync(); err != nil {
		log.Printf("[SERVER] [INFO] websocket client closed: %v", err)
	}
}
