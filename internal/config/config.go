package config

import (
    "os"
    "strconv"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// Rate is a carrier rate card entry: price per kg, fuel surcharge
// fraction and minimum charge.
type Rate struct {
    PerKg     float64 `yaml:"perKg" json:"perKg"`
    FuelPct   float64 `yaml:"fuelPct" json:"fuelPct"`
    MinCharge float64 `yaml:"minCharge" json:"minCharge"`
}

// Config holds tunables for the assignment and quoting workflows.
// Defaults match production behavior; a YAML file and env vars can
// override individual knobs.
type Config struct {
    // Default rate card keyed by service type; used when a carrier has
    // no specific rate.
    DefaultRates map[string]Rate `yaml:"defaultRates"`
    // Carrier-specific rates keyed by carrier id, then "zone/serviceType".
    CarrierRates map[string]map[string]Rate `yaml:"carrierRates"`

    Assignment struct {
        BatchSize     int           `yaml:"batchSize"`
        MaxCarriers   int           `yaml:"maxCarriers"`
        PendingExpiry time.Duration `yaml:"-"` // env PENDING_EXPIRY
    } `yaml:"assignment"`

    Sweep struct {
        Interval       time.Duration `yaml:"-"` // env SWEEP_INTERVAL
        BusyWindow     time.Duration `yaml:"-"`
        BusyResetLimit int           `yaml:"busyResetLimit"`
    } `yaml:"sweep"`

    Notifier struct {
        Interval    time.Duration `yaml:"-"`
        MaxAttempts int           `yaml:"maxAttempts"`
        RateRPS     float64       `yaml:"rateRps"`
        RateBurst   int           `yaml:"rateBurst"`
    } `yaml:"notifier"`

    Quote struct {
        CarrierTimeout time.Duration `yaml:"-"` // env QUOTE_TIMEOUT
        LockTTL        time.Duration `yaml:"-"`
    } `yaml:"quote"`
}

// Default returns the built-in configuration.
func Default() Config {
    var c Config
    c.DefaultRates = map[string]Rate{
        "express":  {PerKg: 15, FuelPct: 0.15, MinCharge: 100},
        "standard": {PerKg: 10, FuelPct: 0.12, MinCharge: 50},
        "bulk":     {PerKg: 7, FuelPct: 0.10, MinCharge: 30},
    }
    c.Assignment.BatchSize = 3
    c.Assignment.MaxCarriers = 9
    c.Assignment.PendingExpiry = 10 * time.Minute
    c.Sweep.Interval = time.Minute
    c.Sweep.BusyWindow = 30 * time.Minute
    c.Sweep.BusyResetLimit = 5
    c.Notifier.Interval = time.Second
    c.Notifier.MaxAttempts = 10
    c.Notifier.RateRPS = 20
    c.Notifier.RateBurst = 40
    c.Quote.CarrierTimeout = 10 * time.Second
    c.Quote.LockTTL = 60 * time.Second
    return c
}

// Load reads the YAML file at path (if any) over the defaults, then
// applies env overrides.
func Load(path string) (Config, error) {
    c := Default()
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil {
            return c, err
        }
        if err := yaml.Unmarshal(b, &c); err != nil {
            return c, err
        }
    }
    c.applyEnv()
    return c, nil
}

// FromEnv builds a config from defaults plus the optional CONFIG_FILE
// and env overrides. Missing file is not an error here; dev runs with
// defaults.
func FromEnv() Config {
    if p := os.Getenv("CONFIG_FILE"); p != "" {
        if c, err := Load(p); err == nil {
            return c
        }
    }
    c := Default()
    c.applyEnv()
    return c
}

func (c *Config) applyEnv() {
    if v := os.Getenv("NOTIFY_MAX_ATTEMPTS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            c.Notifier.MaxAttempts = n
        }
    }
    if v := os.Getenv("RATE_RPS"); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
            c.Notifier.RateRPS = f
        }
    }
    if v := os.Getenv("RATE_BURST"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            c.Notifier.RateBurst = n
        }
    }
    if v := os.Getenv("PENDING_EXPIRY"); v != "" {
        if d, err := time.ParseDuration(v); err == nil && d > 0 {
            c.Assignment.PendingExpiry = d
        }
    }
    if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
        if d, err := time.ParseDuration(v); err == nil && d > 0 {
            c.Sweep.Interval = d
        }
    }
    if v := os.Getenv("QUOTE_TIMEOUT"); v != "" {
        if d, err := time.ParseDuration(v); err == nil && d > 0 {
            c.Quote.CarrierTimeout = d
        }
    }
}

// CarrierRate looks up a carrier-specific rate for zone/serviceType,
// falling back to the service-type default.
func (c Config) CarrierRate(carrierID, zone, serviceType string) (Rate, bool) {
    if m, ok := c.CarrierRates[carrierID]; ok {
        if r, ok := m[zone+"/"+serviceType]; ok {
            return r, true
        }
        if r, ok := m[serviceType]; ok {
            return r, true
        }
    }
    r, ok := c.DefaultRates[serviceType]
    return r, ok
}
