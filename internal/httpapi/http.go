// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package httpapi exposes the aggregate store over a small read-mostly
// JSON API plus an SSE push stream, the way internal/server/observability
// exposes a backup server's metrics and sessions.
package httpapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/config"
	"github.com/nullstride/resonance-observer/internal/health"
	"github.com/nullstride/resonance-observer/internal/pki"
)

const streamPushInterval = 100 * time.Millisecond // matches the rate deriver's 10Hz tick

// NewRouter builds the HTTP handler exposing store's live state and
// control endpoints. logger receives SSE client connect/disconnect events.
// healthFn supplies the latest host resource snapshot for /api/v1/health.
func NewRouter(store *aggregate.Store, healthFn func() health.Stats, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/players", makePlayersHandler(store))
	mux.HandleFunc("GET /api/v1/enemies", makeEnemiesHandler(store))
	mux.HandleFunc("GET /api/v1/settings", makeGetSettingsHandler(store))
	mux.HandleFunc("POST /api/v1/settings", makePostSettingsHandler(store))
	mux.HandleFunc("POST /api/v1/pause", makePauseHandler(store))
	mux.HandleFunc("POST /api/v1/clear", makeClearHandler(store))
	mux.HandleFunc("GET /api/v1/stream", makeStreamHandler(store, logger))
	mux.HandleFunc("GET /api/v1/health", makeHealthHandler(healthFn))

	return mux
}

// HealthDTO is the wire shape of the host resource monitor's latest
// snapshot.
type HealthDTO struct {
	CPUPercent       float64   `json:"cpuPercent"`
	MemoryPercent    float64   `json:"memoryPercent"`
	DiskUsagePercent float64   `json:"diskUsagePercent"`
	LoadAverage      float64   `json:"loadAverage"`
	CollectedAt      time.Time `json:"collectedAt"`
}

func makeHealthHandler(healthFn func() health.Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := healthFn()
		writeJSON(w, http.StatusOK, HealthDTO{
			CPUPercent:       s.CPUPercent,
			MemoryPercent:    s.MemoryPercent,
			DiskUsagePercent: s.DiskUsagePercent,
			LoadAverage:      s.LoadAverage,
			CollectedAt:      s.CollectedAt,
		})
	}
}

// PlayerDTO is the wire shape of one player's live aggregate state.
type PlayerDTO struct {
	UID           uint32         `json:"uid"`
	Name          string         `json:"name"`
	Profession    string         `json:"profession"`
	SubProfession string         `json:"subProfession"`
	Level         uint32         `json:"level"`
	FightPoint    uint32         `json:"fightPoint"`
	HP            uint32         `json:"hp"`
	MaxHP         uint32         `json:"maxHp"`
	DeadCount     uint64         `json:"deadCount"`
	Damage        RateStatsDTO   `json:"damage"`
	Healing       RateStatsDTO   `json:"healing"`
	TakenDamage   uint64         `json:"takenDamage"`
	Skills        []SkillStatDTO `json:"skills"`
}

// RateStatsDTO is the wire shape of a rolling damage or healing total.
type RateStatsDTO struct {
	Total    uint64  `json:"total"`
	Count    uint64  `json:"count"`
	Rate     float64 `json:"rate"`
	RateMax  float64 `json:"rateMax"`
	Normal   uint64  `json:"normal"`
	Critical uint64  `json:"critical"`
	Lucky    uint64  `json:"lucky"`
	CritLuck uint64  `json:"critLucky"`
}

// SkillStatDTO is the wire shape of a per-skill breakdown.
type SkillStatDTO struct {
	Kind       string `json:"kind"`
	ID         uint32 `json:"id"`
	Element    string `json:"element"`
	TotalValue uint64 `json:"totalValue"`
	TotalCount uint64 `json:"totalCount"`
	CritCount  uint64 `json:"critCount"`
	LuckyCount uint64 `json:"luckyCount"`
}

// EnemyDTO is the wire shape of one tracked enemy's live state.
type EnemyDTO struct {
	ID    uint32 `json:"id"`
	Name  string `json:"name"`
	HP    uint32 `json:"hp"`
	MaxHP uint32 `json:"maxHp"`
}

// SettingsDTO is the wire shape of the global toggles.
type SettingsDTO struct {
	AutoClearOnServerChange bool `json:"autoClearOnServerChange"`
	AutoClearOnTimeout      bool `json:"autoClearOnTimeout"`
	OnlyRecordEliteDummy    bool `json:"onlyRecordEliteDummy"`
	Paused                  bool `json:"paused"`
}

func toRateStatsDTO(s aggregate.RateStats) RateStatsDTO {
	return RateStatsDTO{
		Total:    s.Total,
		Count:    s.Count,
		Rate:     s.Rate,
		RateMax:  s.RateMax,
		Normal:   s.ValueBreakdown.Normal,
		Critical: s.ValueBreakdown.Critical,
		Lucky:    s.ValueBreakdown.Lucky,
		CritLuck: s.ValueBreakdown.CritLucky,
	}
}

func toPlayerDTO(p aggregate.Player) PlayerDTO {
	skills := make([]SkillStatDTO, 0, len(p.SkillUsage))
	for _, s := range p.SkillUsage {
		kind := "damage"
		if s.SkillKey.Kind == aggregate.SkillHealing {
			kind = "healing"
		}
		skills = append(skills, SkillStatDTO{
			Kind:       kind,
			ID:         s.SkillKey.ID,
			Element:    s.Element,
			TotalValue: s.TotalValue,
			TotalCount: s.TotalCount,
			CritCount:  s.CritCount,
			LuckyCount: s.LuckyCount,
		})
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].TotalValue > skills[j].TotalValue })

	return PlayerDTO{
		UID:           p.UID,
		Name:          p.Name,
		Profession:    p.Profession,
		SubProfession: p.SubProfession,
		Level:         p.Level,
		FightPoint:    p.FightPoint,
		HP:            p.HP,
		MaxHP:         p.MaxHP,
		DeadCount:     p.DeadCount,
		Damage:        toRateStatsDTO(p.DamageStats),
		Healing:       toRateStatsDTO(p.HealingStats),
		TakenDamage:   p.TakenDamage,
		Skills:        skills,
	}
}

func playersSnapshot(store *aggregate.Store) []PlayerDTO {
	players := store.Players()
	out := make([]PlayerDTO, 0, len(players))
	for _, p := range players {
		out = append(out, toPlayerDTO(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Damage.Total > out[j].Damage.Total })
	return out
}

func enemiesSnapshot(store *aggregate.Store) []EnemyDTO {
	enemies := store.Enemies()
	out := make([]EnemyDTO, 0, len(enemies))
	for _, e := range enemies {
		out = append(out, EnemyDTO{ID: e.ID, Name: e.Name, HP: e.HP, MaxHP: e.MaxHP})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func settingsSnapshot(store *aggregate.Store) SettingsDTO {
	s := store.Settings()
	return SettingsDTO{
		AutoClearOnServerChange: s.AutoClearOnServerChange,
		AutoClearOnTimeout:      s.AutoClearOnTimeout,
		OnlyRecordEliteDummy:    s.OnlyRecordEliteDummy,
		Paused:                  store.IsPaused(),
	}
}

func makePlayersHandler(store *aggregate.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, playersSnapshot(store))
	}
}

func makeEnemiesHandler(store *aggregate.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, enemiesSnapshot(store))
	}
}

func makeGetSettingsHandler(store *aggregate.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, settingsSnapshot(store))
	}
}

func makePostSettingsHandler(store *aggregate.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid settings body", http.StatusBadRequest)
			return
		}
		store.UpdateSettings(aggregate.GlobalSettings{
			AutoClearOnServerChange: req.AutoClearOnServerChange,
			AutoClearOnTimeout:      req.AutoClearOnTimeout,
			OnlyRecordEliteDummy:    req.OnlyRecordEliteDummy,
		})
		writeJSON(w, http.StatusOK, settingsSnapshot(store))
	}
}

func makePauseHandler(store *aggregate.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.Pause(!store.IsPaused())
		writeJSON(w, http.StatusOK, map[string]bool{"paused": store.IsPaused()})
	}
}

func makeClearHandler(store *aggregate.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.ClearAll()
		w.WriteHeader(http.StatusNoContent)
	}
}

// makeStreamHandler pushes a combined players+enemies snapshot over
// server-sent events at the same cadence as the rate deriver, so a
// connected dashboard never polls faster than the numbers change.
func makeStreamHandler(store *aggregate.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ctx := r.Context()
		ticker := time.NewTicker(streamPushInterval)
		defer ticker.Stop()

		logger.Debug("sse client connected", "remote", r.RemoteAddr)
		defer logger.Debug("sse client disconnected", "remote", r.RemoteAddr)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writeSSEFrame(w, store); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, store *aggregate.Store) error {
	payload := struct {
		Players []PlayerDTO `json:"players"`
		Enemies []EnemyDTO  `json:"enemies"`
	}{
		Players: playersSnapshot(store),
		Enemies: enemiesSnapshot(store),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Serve is a convenience wrapper for cmd/resonance-observer: it blocks
// until ctx is cancelled, then shuts the server down gracefully. When
// cfg.TLS is set, the listener terminates TLS 1.3, requiring a client
// certificate if cfg.TLS.CACertFile is also set.
func Serve(ctx context.Context, cfg config.HTTPConfig, store *aggregate.Store, healthFn func() health.Stats, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: NewRouter(store, healthFn, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		err := serveListener(srv, cfg.TLS)
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func serveListener(srv *http.Server, tlsCfg *config.TLSConfig) error {
	if tlsCfg == nil {
		return srv.ListenAndServe()
	}
	var (
		cfg *tls.Config
		err error
	)
	if tlsCfg.CACertFile != "" {
		cfg, err = pki.NewMutualTLSConfig(tlsCfg.CACertFile, tlsCfg.CertFile, tlsCfg.KeyFile)
	} else {
		cfg, err = pki.NewDashboardTLSConfig(tlsCfg.CertFile, tlsCfg.KeyFile)
	}
	if err != nil {
		return err
	}
	srv.TLSConfig = cfg
	return srv.ListenAndServeTLS("", "")
}
