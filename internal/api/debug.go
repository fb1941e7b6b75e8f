package api

import (
    "encoding/json"
    "net/http"
    "os"
    "time"

    "shipflow/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "PORT": os.Getenv("PORT"),
            "AUTH_MODE": os.Getenv("AUTH_MODE"),
            "CONFIG_FILE": os.Getenv("CONFIG_FILE"),
            "RATE_RPS": os.Getenv("RATE_RPS"),
            "RATE_BURST": os.Getenv("RATE_BURST"),
            "NOTIFY_MAX_ATTEMPTS": os.Getenv("NOTIFY_MAX_ATTEMPTS"),
            "PENDING_EXPIRY": os.Getenv("PENDING_EXPIRY"),
            "SWEEP_INTERVAL": os.Getenv("SWEEP_INTERVAL"),
            "QUOTE_TIMEOUT": os.Getenv("QUOTE_TIMEOUT"),
            "HAS_DATABASE_URL": os.Getenv("DATABASE_URL") != "",
            "HAS_REDIS_URL": os.Getenv("REDIS_URL") != "",
            "HAS_ROUTING_URL": os.Getenv("ROUTING_URL") != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
