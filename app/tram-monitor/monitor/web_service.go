package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	logger "log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//vehiclesHandler answers vehicle queries
type vehiclesHandler struct {
	log    *logger.Logger
	engine *Engine
}

//parseQueryOptions reads QueryOptions from the request parameters active, line, station, static, time and timeOffset
func parseQueryOptions(r *http.Request) (QueryOptions, error) {
	opts := QueryOptions{
		ActiveOnly: strings.ToLower(r.FormValue("active")) == "true",
		Route:      r.FormValue("line"),
		StaticOnly: strings.ToLower(r.FormValue("static")) == "true",
	}
	numbers := []struct {
		name  string
		value *int64
	}{
		{name: "time", value: &opts.Time},
		{name: "timeOffset", value: &opts.TimeOffset},
	}
	for _, n := range numbers {
		raw := r.FormValue(n.name)
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid %s %q", n.name, raw)
		}
		*n.value = parsed
	}
	if raw := r.FormValue("station"); raw != "" {
		station, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid station %q", raw)
		}
		opts.Station = station
	}
	return opts, nil
}

//ServeHTTP implements vehiclesHandler's http.Handler interface
func (v *vehiclesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts, err := parseQueryOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vehicles, err := v.engine.Query(r.Context(), opts)
	if err != nil {
		v.log.Printf("Error answering vehicle query: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	writeJSON(v.log, w, vehicles)
}

//tripUpdatesHandler serves the repaired predictions as a gtfs-rt trip updates feed
type tripUpdatesHandler struct {
	log    *logger.Logger
	engine *Engine
}

//ServeHTTP implements tripUpdatesHandler's http.Handler interface
func (t *tripUpdatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	asText := strings.ToLower(r.FormValue("text")) == "true"
	opts, err := parseQueryOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vehicles, err := t.engine.Query(r.Context(), opts)
	if err != nil {
		t.log.Printf("Error answering trip update query: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	feedMessage := buildFeedMessage(vehicles, uint64(t.engine.queryTime(opts)/1000))
	if asText {
		w.Header().Set("Content-Type", "text/plain")
		_, err = w.Write([]byte(prototext.MarshalOptions{Multiline: true}.Format(feedMessage)))
	} else {
		var bytes []byte
		bytes, err = proto.Marshal(feedMessage)
		if err != nil {
			t.log.Printf("Failed to marshal gtfsrt.FeedMessage to bytes, error:%s", err)
			http.Error(w, "Error serving request", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, err = w.Write(bytes)
	}
	if err != nil {
		t.log.Printf("Error writing bytes to http.ResponseWriter, error:%s", err)
	}
}

//historyHandler replays a historical date
type historyHandler struct {
	log    *logger.Logger
	engine *Engine
}

//ServeHTTP implements historyHandler's http.Handler interface
func (h *historyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts, err := parseQueryOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vehicles, err := h.engine.Replay(r.Context(), mux.Vars(r)["date"], opts)
	if err != nil {
		h.log.Printf("Error replaying historical data: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	writeJSON(h.log, w, vehicles)
}

func writeJSON(log *logger.Logger, w http.ResponseWriter, v interface{}) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		log.Printf("Error writing json response: %s", err)
	}
}

//createRouter routes the vehicle, trip update, history and metrics endpoints
func createRouter(log *logger.Logger, engine *Engine) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.Handle("/vehicles", &vehiclesHandler{log: log, engine: engine}).Methods(http.MethodGet)
	r.Handle("/tripUpdates", &tripUpdatesHandler{log: log, engine: engine}).Methods(http.MethodGet)
	r.Handle("/history/{date}", &historyHandler{log: log, engine: engine}).Methods(http.MethodGet)
	r.Handle("/metrics", engine.metrics.Handler())
	return r
}

//createServer creates configured http.Server for responding to vehicle requests
func createServer(log *logger.Logger, engine *Engine, httpPort int) *http.Server {
	return &http.Server{
		Addr:         strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      createRouter(log, engine),
	}
}

//RunWebService serves vehicle queries on httpPort, and terminates on shutdown signal
func RunWebService(log *logger.Logger, engine *Engine, httpPort int, shutdownSignal chan os.Signal) error {
	srv := createServer(log, engine, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server ListenAndServe ended: %w", err)
	case <-shutdownSignal:
		log.Printf("ending webservice on shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down webservice: %w", err)
		}
	}
	return nil
}
