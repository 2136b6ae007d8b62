package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
)

func main() {
	addr := flag.String("addr", ":7070", "Listen address")
	file := flag.String("file", "", "Serve this exported analysis instead of the built-in one")
	fiberID := flag.String("fiber-id", "SPOOL-LOCAL", "Fiber ID of the built-in analysis")
	flag.Parse()

	var loaded atomic.Bool
	loaded.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/analysis/current", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !loaded.Load() {
			http.Error(w, "no analysis loaded", http.StatusNotFound)
			return
		}
		if *file != "" {
			data, err := os.ReadFile(*file)
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(data)
			return
		}
		writeJSON(w, sampleAnalysis(*fiberID, time.Now().UTC()))
	})

	// POST toggles whether an analysis is loaded, to exercise the unavailable path.
	mux.HandleFunc("/admin/toggle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		now := !loaded.Load()
		loaded.Store(now)
		writeJSON(w, map[string]bool{"loaded": now})
	})

	logger := log.New(log.Writer(), "frontpanel-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// sampleAnalysis is a 1310/1550 nm bidirectional analysis of a ~2 km spool.
func sampleAnalysis(fiberID string, now time.Time) *source.Snapshot {
	stamp := func(offset time.Duration) string { return now.Add(offset).Format(time.RFC3339) }
	ids := []source.SampleID{{Label: "Fiber ID", Value: fiberID}, {Label: "Operator", Value: "localdev"}}
	module := source.OpticalModule{SerialNumber: "OM-LOCAL-1", Model: "GN8000-SM"}
	maxLoss, minLoss := 1, 0

	direction := func(offset time.Duration, atten, length float64) *source.DirectionSnapshot {
		return &source.DirectionSnapshot{
			EventsValid:        true,
			SlidingWindowValid: true,
			Events: &source.EventTableSnapshot{
				Atten:  atten,
				Length: length,
				Buffers: []source.Event{
					{Location: 1.0e-6, Loss: 0.21, Reflectance: -52.0},
					{Location: 1.0e-6 + length, Loss: 0.18, Reflectance: -48.5},
				},
				Table: []source.Event{
					{Location: 6.0e-6, Loss: 0.02, Reflectance: -71.0},
					{Location: 1.1e-5, Loss: 0.08, Reflectance: -60.0},
				},
				MaxLoss: &maxLoss,
				MinLoss: &minLoss,
			},
			Sig: &source.SignatureSnapshot{
				AcquiredAtRaw: stamp(offset),
				Pulse:         1.0e-8,
				Spacing:       2.5e-9,
				RangeS:        5.0e-5,
				AvgType:       models.AverageCount,
				AvgCount:      4096,
				IDs:           ids,
				Module:        module,
				Window: &source.SlidingWindowSnapshot{
					Atten: source.Extrema{Max: atten * 1.08, MaxLoc: 9.0e-6, Min: atten * 0.95, MinLoc: 4.0e-6},
					Unif:  source.Extrema{Max: 800, MaxLoc: 1.2e-5, Min: 90, MinLoc: 3.0e-6},
				},
			},
		}
	}

	return &source.Snapshot{
		Valid:            true,
		LengthEstimateKm: 2.0,
		Spectral: &source.SpectralSnapshot{
			Valid: true,
			Predicted: []source.XY{
				{X: 1310, Y: 0.334}, {X: 1383, Y: 0.291}, {X: 1550, Y: 0.191},
			},
		},
		Waves: []source.WavelengthSnapshot{
			{
				Nm: 1310, Index: 1.4677, Valid: true,
				Top:    direction(0, 35740, 1.9600e-5),
				Bottom: direction(2*time.Minute, 35800, 1.9620e-5),
				MFD:    &source.MFDSnapshot{Valid: true, Top: 9.21, Bottom: 9.19},
			},
			{
				Nm: 1550, Index: 1.4682, Valid: true,
				Top:    direction(4*time.Minute, 21450, 1.9690e-5),
				Bottom: direction(6*time.Minute, 21600, 1.9580e-5),
				MFD:    &source.MFDSnapshot{Valid: true, Top: 10.41, Bottom: 10.38},
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
