package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"github.com/ryansname/axisctl/src/axis"
)

var errClamped = errors.New("requested position violates software limits, aborted")

// FloatT is a JSON body holding a float, {"f64": 1.5}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// BoolT is a JSON body holding a bool, {"bool": true}
type BoolT struct {
	Bool bool `json:"bool"`
}

// StrT is a JSON body holding a string, {"str": "forward"}
type StrT struct {
	Str string `json:"str"`
}

// MethodPath is a route key
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps routes to their handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes in a stable order
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for mp := range rt {
		routes = append(routes, mp.Method+" "+mp.Path)
	}
	slices.Sort(routes)
	return routes
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

// respondError maps plant errors onto status codes
func respondError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errUnknownAxis), errors.Is(err, errUnknownInput), errors.Is(err, errUnknownSignal):
		code = http.StatusNotFound
	case errors.Is(err, errBadPayload):
		code = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), code)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// queryFloat reads an optional float query parameter
func queryFloat(r *http.Request, key string) (float64, bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q", errBadPayload, key, s)
	}
	return f, true, nil
}

func queryRelative(r *http.Request) (bool, error) {
	relative := r.URL.Query().Get("relative")
	if relative == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(relative)
	if err != nil {
		return false, fmt.Errorf("%w: relative=%q", errBadPayload, relative)
	}
	return b, nil
}

// apiServer exposes the plant over HTTP
type apiServer struct {
	plant     PlantController
	stateFile string
}

// withAxis runs fn on the axis named in the route
func (s *apiServer) withAxis(r *http.Request, fn func(a *axis.Axis) error) error {
	name := chi.URLParam(r, "axis")
	return s.plant.Do(r.Context(), func(p *Plant) error {
		a, err := p.Axis(name)
		if err != nil {
			return err
		}
		return fn(a)
	})
}

// getFloat answers {"f64": x} with a value read from the axis
func (s *apiServer) getFloat(get func(a *axis.Axis) float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f FloatT
		if err := s.withAxis(r, func(a *axis.Axis) error { f.F64 = get(a); return nil }); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, f)
	}
}

// command decodes the body into T and applies it to the axis
func command[T any](s *apiServer, apply func(a *axis.Axis, r *http.Request, body T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body T
		if r.ContentLength != 0 {
			if err := decodeBody(r, &body); err != nil {
				respondError(w, err)
				return
			}
		}
		if err := s.withAxis(r, func(a *axis.Axis) error { return apply(a, r, body) }); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *apiServer) getAxes(w http.ResponseWriter, r *http.Request) {
	var state PlantState
	err := s.plant.Do(r.Context(), func(p *Plant) error {
		state = p.State()
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, state)
}

func (s *apiServer) getAxis(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "axis")
	var st AxisState
	err := s.plant.Do(r.Context(), func(p *Plant) error {
		var ok bool
		if st, ok = p.State().Axis(name); !ok {
			return fmt.Errorf("%w: %q", errUnknownAxis, name)
		}
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, st)
}

// setPos moves the axis absolutely or, with relative=true, by the given amount. An optional
// seconds query parameter times the move.
func setPos(a *axis.Axis, r *http.Request, f FloatT) error {
	relative, err := queryRelative(r)
	if err != nil {
		return err
	}
	seconds, timed, err := queryFloat(r, "seconds")
	if err != nil {
		return err
	}
	target := f.F64
	if relative {
		target += a.CurrentPosition()
	}
	if timed {
		a.DriveToIn(target, seconds)
	} else {
		a.DriveTo(target)
	}
	return nil
}

func setVelocity(a *axis.Axis, _ *http.Request, f FloatT) error {
	if f.F64 <= 0 {
		return fmt.Errorf("%w: velocity must be positive", errBadPayload)
	}
	a.TargetSpeed = f.F64
	return nil
}

func jog(a *axis.Axis, _ *http.Request, s StrT) error {
	switch s.Str {
	case "forward":
		a.Forward()
	case "backward":
		a.Backward()
	case "stop":
		a.JogStop()
	default:
		return fmt.Errorf("%w: jog wants forward, backward or stop", errBadPayload)
	}
	return nil
}

func (s *apiServer) getInPosition(w http.ResponseWriter, r *http.Request) {
	var b BoolT
	if err := s.withAxis(r, func(a *axis.Axis) error { b.Bool = a.IsAtTarget(); return nil }); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, b)
}

func (s *apiServer) getTimeTo(w http.ResponseWriter, r *http.Request) {
	target, ok, err := queryFloat(r, "target")
	if err == nil && !ok {
		err = fmt.Errorf("%w: target is required", errBadPayload)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	var f FloatT
	if err := s.withAxis(r, func(a *axis.Axis) error { f.F64 = a.TimeTo(target); return nil }); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, f)
}

func (s *apiServer) getLimits(w http.ResponseWriter, r *http.Request) {
	var limits axis.Limits
	if err := s.withAxis(r, func(a *axis.Axis) error { limits = a.Limits; return nil }); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, limits)
}

func (s *apiServer) setInput(w http.ResponseWriter, r *http.Request) {
	var f FloatT
	if err := decodeBody(r, &f); err != nil {
		respondError(w, err)
		return
	}
	name, input := chi.URLParam(r, "axis"), chi.URLParam(r, "input")
	if err := s.plant.Do(r.Context(), func(p *Plant) error { return p.SetInput(name, input, f.F64) }); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *apiServer) setSignal(w http.ResponseWriter, r *http.Request) {
	var b BoolT
	if err := decodeBody(r, &b); err != nil {
		respondError(w, err)
		return
	}
	name := chi.URLParam(r, "signal")
	if err := s.plant.Do(r.Context(), func(p *Plant) error { return p.SetSignal(name, b.Bool) }); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *apiServer) getSpeedOverride(w http.ResponseWriter, r *http.Request) {
	var f FloatT
	if err := s.plant.Do(r.Context(), func(p *Plant) error { f.F64 = p.SpeedOverride(); return nil }); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, f)
}

func (s *apiServer) setSpeedOverride(w http.ResponseWriter, r *http.Request) {
	var f FloatT
	if err := decodeBody(r, &f); err != nil {
		respondError(w, err)
		return
	}
	if err := s.plant.Do(r.Context(), func(p *Plant) error { p.SetSpeedOverride(f.F64); return nil }); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *apiServer) saveState(w http.ResponseWriter, r *http.Request) {
	if err := s.plant.Do(r.Context(), func(p *Plant) error { return saveStateFile(p, s.stateFile) }); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *apiServer) loadState(w http.ResponseWriter, r *http.Request) {
	if err := s.plant.Do(r.Context(), func(p *Plant) error { return loadStateFile(p, s.stateFile) }); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// routes builds the route table of the API
func (s *apiServer) routes() RouteTable {
	table := RouteTable{}
	table[MethodPath{Method: http.MethodGet, Path: "/axes"}] = s.getAxes
	table[MethodPath{Method: http.MethodGet, Path: "/axis/{axis}"}] = s.getAxis
	table[MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/pos"}] = s.getFloat((*axis.Axis).Position)
	table[MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/pos"}] = command(s, setPos)
	table[MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/velocity"}] = s.getFloat((*axis.Axis).Speed)
	table[MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/velocity"}] = command(s, setVelocity)
	table[MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/stop"}] = command(s, func(a *axis.Axis, _ *http.Request, _ struct{}) error {
		a.Stop()
		return nil
	})
	table[MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/reset"}] = command(s, func(a *axis.Axis, _ *http.Request, b BoolT) error {
		a.SetReset(b.Bool)
		return nil
	})
	table[MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/jog"}] = command(s, jog)
	table[MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/inposition"}] = s.getInPosition
	table[MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/timeto"}] = s.getTimeTo
	table[MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/limits"}] = s.getLimits
	table[MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/input/{input}"}] = s.setInput
	table[MethodPath{Method: http.MethodPost, Path: "/signal/{signal}"}] = s.setSignal
	table[MethodPath{Method: http.MethodGet, Path: "/speed-override"}] = s.getSpeedOverride
	table[MethodPath{Method: http.MethodPost, Path: "/speed-override"}] = s.setSpeedOverride
	table[MethodPath{Method: http.MethodPost, Path: "/state/save"}] = s.saveState
	table[MethodPath{Method: http.MethodPost, Path: "/state/load"}] = s.loadState
	return table
}

// LimitMiddleware rejects absolute or relative position commands outside an axis's software
// limits with StatusBadRequest
type LimitMiddleware struct {
	Plant PlantController
}

// Check verifies if a motion would violate the axis limit and if so responds with
// StatusBadRequest, otherwise it flows control to the next handler
func (l *LimitMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/pos") {
			next.ServeHTTP(w, r)
			return
		}
		relative, err := queryRelative(r)
		if err != nil {
			respondError(w, err)
			return
		}

		// downstream handlers want the body too
		bodyContent, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(bodyContent))
		var f FloatT
		if err := json.Unmarshal(bodyContent, &f); err != nil {
			respondError(w, fmt.Errorf("%w: %v", errBadPayload, err))
			return
		}

		name := chi.URLParam(r, "axis")
		var ok bool
		err = l.Plant.Do(r.Context(), func(p *Plant) error {
			a, err := p.Axis(name)
			if err != nil {
				return err
			}
			cmd := f.F64
			if relative {
				cmd += a.CurrentPosition()
			}
			ok = !a.Limits.Use || (cmd >= a.Limits.Lower && cmd <= a.Limits.Upper)
			return nil
		})
		if err != nil {
			respondError(w, err)
			return
		}
		if !ok {
			http.Error(w, errClamped.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newRouter binds the API routes, and the websocket stream when hub is not nil
func newRouter(plant PlantController, stateFile string, hub *Hub) chi.Router {
	s := &apiServer{plant: plant, stateFile: stateFile}
	limits := &LimitMiddleware{Plant: plant}
	table := s.routes()

	r := chi.NewRouter()
	for mp, h := range table {
		r.With(limits.Check).MethodFunc(mp.Method, mp.Path, h)
	}
	endpoints := table.Endpoints()
	r.Get("/endpoints", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, endpoints)
	})
	if hub != nil {
		r.Get("/ws", hub.ServeWS)
	}
	return r
}

// saveStateFile writes the plant state to path
func saveStateFile(p *Plant, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// loadStateFile restores the plant from path
func loadStateFile(p *Plant, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.Load(f)
}
