// ingest-receiver is a stand-in for the ingestion backend during local
// development. It accepts event batches on /engagement/events, tracks
// duplicate request IDs so spool replays are visible, and can be told
// to fail every Nth batch to exercise retries.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

type eventRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	OccurredAt string            `json:"occurred_at"`
}

type batchPayload struct {
	Events []eventRecord `json:"events"`
	SentAt string        `json:"sent_at"`
}

type receivedBatch struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
	AppID     string `json:"app_id"`
	Events    int    `json:"events"`
	Duplicate bool   `json:"duplicate"`
}

type stats struct {
	Batches     int64            `json:"batches"`
	Events      int64            `json:"events"`
	Duplicates  int64            `json:"duplicates"`
	Rejected    int64            `json:"rejected"`
	ScreenViews map[string]int64 `json:"screen_views"`
	LastBatches []receivedBatch  `json:"last_batches"`
	Since       string           `json:"since"`
}

var (
	mu          sync.Mutex
	batches     int64
	events      int64
	duplicates  int64
	rejected    int64
	screenViews = make(map[string]int64)
	seenIDs     = make(map[string]bool)
	lastBatches []receivedBatch
	since       time.Time
	maxStored   = 50

	// failEvery > 0 rejects every Nth batch with a 503.
	failEvery int64
)

func main() {
	since = time.Now().UTC()

	addr := ":9099"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}
	if v := os.Getenv("FAIL_EVERY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			failEvery = n
			log.Printf("ingest-receiver: rejecting every %d. batch with 503", n)
		}
	}

	http.HandleFunc("/engagement/events", eventsHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		batches = 0
		events = 0
		duplicates = 0
		rejected = 0
		screenViews = make(map[string]int64)
		seenIDs = make(map[string]bool)
		lastBatches = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("ingest-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload batchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":%q}`, err.Error())
		return
	}
	defer r.Body.Close()

	requestID := r.Header.Get("X-Request-Id")
	appID := r.Header.Get("X-App-Id")

	mu.Lock()
	batches++
	if failEvery > 0 && batches%failEvery == 0 {
		rejected++
		current := batches
		mu.Unlock()
		log.Printf("batch #%d rejected (simulated outage)", current)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	duplicate := requestID != "" && seenIDs[requestID]
	if duplicate {
		duplicates++
	} else {
		if requestID != "" {
			seenIDs[requestID] = true
		}
		events += int64(len(payload.Events))
		for _, ev := range payload.Events {
			if ev.Name == "ScreenView" {
				screenViews[ev.Attributes["screen_name"]]++
			}
		}
	}

	batch := receivedBatch{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: requestID,
		AppID:     appID,
		Events:    len(payload.Events),
		Duplicate: duplicate,
	}
	lastBatches = append(lastBatches, batch)
	if len(lastBatches) > maxStored {
		lastBatches = lastBatches[len(lastBatches)-maxStored:]
	}
	current := batches
	mu.Unlock()

	if duplicate {
		log.Printf("batch #%d: %d events, request_id=%s (duplicate, ignored)", current, len(payload.Events), requestID)
	} else {
		log.Printf("batch #%d: %d events, request_id=%s", current, len(payload.Events), requestID)
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Batches:     batches,
		Events:      events,
		Duplicates:  duplicates,
		Rejected:    rejected,
		ScreenViews: screenViews,
		LastBatches: lastBatches,
		Since:       since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
