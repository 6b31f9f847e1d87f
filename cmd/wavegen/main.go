// wavegen - synthetic band-vector generator for exercising a wavemind
// daemon. Streams samples over the /ws/ingest websocket, or posts a
// single sample with -once.
//
// The generated signal drifts each band sinusoidally around a center
// vector, with optional noise, so an actor's score visibly oscillates
// through the success and overload thresholds.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/entrainlab/go-wavemind/internal/httpc"
	"github.com/entrainlab/go-wavemind/internal/log"
	"github.com/entrainlab/go-wavemind/pkg/wave"
)

type sampleMsg struct {
	Bands []float64 `json:"bands"`
}

func main() {
	host := flag.String("host", "localhost:8600", "wavemind host:port")
	center := flag.String("center", "0.1,0.2,0.6,0.6,0.2", "comma-separated center band values")
	swing := flag.Float64("swing", 0.15, "sinusoidal swing amplitude per band")
	period := flag.Duration("period", 20*time.Second, "full swing period")
	noise := flag.Float64("noise", 0.02, "uniform noise amplitude per band")
	rate := flag.Duration("rate", 50*time.Millisecond, "send interval")
	once := flag.Bool("once", false, "POST a single sample over HTTP and exit")
	flag.Parse()

	log.Init("info")

	bands, err := parseBands(*center)
	if err != nil {
		log.Error("bad center vector", "error", err)
		os.Exit(1)
	}

	if *once {
		if err := postOnce(*host, bands); err != nil {
			log.Error("post sample", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	url := fmt.Sprintf("ws://%s/ws/ingest", *host)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.Error("dial ingest stream", "url", url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	log.Info("streaming samples", "url", url, "rate", *rate)

	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	start := time.Now()
	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("stopped", "samples_sent", sent)
			return
		case <-ticker.C:
			t := time.Since(start).Seconds()
			msg := sampleMsg{Bands: generate(bands, t, *swing, *period, *noise)}
			if err := conn.WriteJSON(msg); err != nil {
				log.Error("write sample", "error", err)
				return
			}
			sent++
		}
	}
}

// generate drifts each band around its center with a per-band phase
// offset so the bands don't move in lockstep.
func generate(center []float64, t, swing float64, period time.Duration, noise float64) []float64 {
	out := make([]float64, len(center))
	omega := 2 * math.Pi / period.Seconds()
	for i, c := range center {
		phase := float64(i) * math.Pi / 3
		v := c + swing*math.Sin(omega*t+phase)
		v += noise * (2*rand.Float64() - 1)
		out[i] = v // server sanitizes; no need to clamp here
	}
	return out
}

func postOnce(host string, bands []float64) error {
	body, err := json.Marshal(sampleMsg{Bands: bands})
	if err != nil {
		return err
	}
	resp, err := httpc.Post(fmt.Sprintf("http://%s/api/sample", host), "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	log.Info("sample posted", "bands", bands)
	return nil
}

func parseBands(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != wave.BandCount {
		return nil, fmt.Errorf("need %d band values, got %d", wave.BandCount, len(parts))
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("band %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
