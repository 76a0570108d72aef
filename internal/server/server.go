package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"GardLedger/internal/group"
	"GardLedger/internal/ingestion"
	"GardLedger/internal/observability"
	"GardLedger/internal/persistence"
	"GardLedger/internal/projection"
	"GardLedger/internal/query"
)

// Deps holds the dependencies the API server needs.
type Deps struct {
	Query       *query.QueryService
	Admin       *ingestion.AdminIngestService
	Snapshots   *persistence.SnapshotManager
	Health      *observability.HealthChecker
	Metrics     *observability.Metrics
	RebuildFunc func(ctx context.Context) error // projections rebuild
	StartTime   time.Time
}

// Server exposes the read API and admin surface over HTTP/JSON, plus a
// gRPC endpoint carrying health and reflection for infrastructure probes.
type Server struct {
	deps   Deps
	logger zerolog.Logger

	grpcServer *grpc.Server
	httpServer *http.Server
	healthSrv  *health.Server
}

func New(deps Deps, logger zerolog.Logger) *Server {
	if deps.RebuildFunc == nil {
		deps.RebuildFunc = func(ctx context.Context) error {
			return projection.RebuildProjections(ctx, deps.Query.DB())
		}
	}
	return &Server{
		deps:   deps,
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// StartGRPC starts the gRPC listener. Only health and reflection services
// are registered; the query and admin surfaces are HTTP/JSON.
func (s *Server) StartGRPC(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", addr, err)
	}

	s.grpcServer = grpc.NewServer()
	s.healthSrv = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.healthSrv)
	reflection.Register(s.grpcServer)
	s.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s.logger.Info().Str("addr", addr).Msg("grpc server listening")

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Error().Err(err).Msg("grpc server exited")
		}
	}()
	return nil
}

// StartHTTP starts the HTTP/JSON API on addr.
func (s *Server) StartHTTP(addr string) error {
	gw := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/positions/{escrow}", s.handleGetPosition},
		{http.MethodGet, "/v1/positions/{escrow}/history", s.handleGetPositionHistory},
		{http.MethodGet, "/v1/owners/{owner}/positions", s.handleGetOwnerPositions},
		{http.MethodGet, "/v1/auctions", s.handleGetAuctions},
		{http.MethodGet, "/v1/accounts/{account}/balance", s.handleGetBalance},
		{http.MethodGet, "/v1/accounts/{account}/journal", s.handleGetJournal},
		{http.MethodGet, "/v1/admin/integrity", s.handleVerifyIntegrity},
		{http.MethodGet, "/v1/admin/eventlog", s.handleEventLogInfo},
		{http.MethodPost, "/v1/admin/rebuild-projections", s.handleRebuildProjections},
		{http.MethodPost, "/v1/admin/inject/price", s.handleInjectPrice},
		{http.MethodPost, "/v1/admin/inject/fee", s.handleInjectFee},
		{http.MethodPost, "/v1/admin/inject/manager", s.handleInjectManager},
	}
	for _, r := range routes {
		if err := gw.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.deps.Health.LivenessHandler)
	mux.HandleFunc("/readyz", s.deps.Health.ReadinessHandler)
	mux.Handle("/", gw)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("http server listening")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server exited")
		}
	}()
	return nil
}

// Stop gracefully shuts down both listeners.
func (s *Server) Stop(ctx context.Context) {
	if s.healthSrv != nil {
		s.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown")
		}
	}
	if s.grpcServer != nil {
		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	}
}

// --- query handlers ---

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request, params map[string]string) {
	s.instrument(w, r, "get_position", func(ctx context.Context) (interface{}, int, error) {
		escrow := params["escrow"]
		if _, err := group.ParseAddress(escrow); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid escrow address: %w", err)
		}
		pos, err := s.deps.Query.GetPosition(ctx, escrow)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		if pos == nil {
			return nil, http.StatusNotFound, fmt.Errorf("no open position for escrow %s", escrow)
		}
		return pos, http.StatusOK, nil
	})
}

func (s *Server) handleGetPositionHistory(w http.ResponseWriter, r *http.Request, params map[string]string) {
	s.instrument(w, r, "get_position_history", func(ctx context.Context) (interface{}, int, error) {
		escrow := params["escrow"]
		if _, err := group.ParseAddress(escrow); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid escrow address: %w", err)
		}
		limit, after, err := pagination(r)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		history, err := s.deps.Query.GetPositionHistory(ctx, escrow, limit, after)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return map[string]interface{}{"history": history}, http.StatusOK, nil
	})
}

func (s *Server) handleGetOwnerPositions(w http.ResponseWriter, r *http.Request, params map[string]string) {
	s.instrument(w, r, "get_owner_positions", func(ctx context.Context) (interface{}, int, error) {
		owner := params["owner"]
		if _, err := group.ParseAddress(owner); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid owner address: %w", err)
		}
		positions, err := s.deps.Query.GetPositionsByOwner(ctx, owner)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return map[string]interface{}{"positions": positions}, http.StatusOK, nil
	})
}

func (s *Server) handleGetAuctions(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.instrument(w, r, "get_auctions", func(ctx context.Context) (interface{}, int, error) {
		auctions, err := s.deps.Query.GetAuctions(ctx)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return map[string]interface{}{"auctions": auctions}, http.StatusOK, nil
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	s.instrument(w, r, "get_balance", func(ctx context.Context) (interface{}, int, error) {
		account := params["account"]
		if _, err := group.ParseAddress(account); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid account address: %w", err)
		}
		balance, err := s.deps.Query.GetBalance(ctx, account)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return balance, http.StatusOK, nil
	})
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request, params map[string]string) {
	s.instrument(w, r, "get_journal", func(ctx context.Context) (interface{}, int, error) {
		account := params["account"]
		if _, err := group.ParseAddress(account); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid account address: %w", err)
		}
		limit, after, err := pagination(r)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		entries, err := s.deps.Query.GetJournalHistory(ctx, account, limit, after)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return map[string]interface{}{"entries": entries}, http.StatusOK, nil
	})
}

// --- admin handlers ---

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.instrument(w, r, "verify_integrity", func(ctx context.Context) (interface{}, int, error) {
		report, err := s.deps.Query.VerifyIntegrity(ctx)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return report, http.StatusOK, nil
	})
}

func (s *Server) handleEventLogInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.instrument(w, r, "eventlog_info", func(ctx context.Context) (interface{}, int, error) {
		latest, err := s.deps.Snapshots.GetLatestSequence(ctx)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		snap, err := s.deps.Snapshots.LoadLatestSnapshot(ctx)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		info := map[string]interface{}{
			"latest_sequence": latest,
			"uptime":          time.Since(s.deps.StartTime).String(),
		}
		if snap != nil {
			info["snapshot_sequence"] = snap.Sequence
			info["snapshot_created_at"] = snap.CreatedAt
		}
		return info, http.StatusOK, nil
	})
}

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.instrument(w, r, "rebuild_projections", func(ctx context.Context) (interface{}, int, error) {
		started := time.Now()
		if err := s.deps.RebuildFunc(ctx); err != nil {
			return nil, http.StatusInternalServerError, err
		}
		s.logger.Info().Dur("took", time.Since(started)).Msg("projections rebuilt")
		return map[string]interface{}{"rebuilt": true, "took": time.Since(started).String()}, http.StatusOK, nil
	})
}

type injectPriceRequest struct {
	OracleAppID   uint64 `json:"oracle_app_id"`
	Price         uint64 `json:"price"`
	Decimals      uint64 `json:"decimals"`
	PriceSequence int64  `json:"price_sequence"`
}

func (s *Server) handleInjectPrice(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.instrument(w, r, "inject_price", func(ctx context.Context) (interface{}, int, error) {
		var req injectPriceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("decode body: %w", err)
		}
		if err := s.deps.Admin.InjectPrice(ctx, req.OracleAppID, req.Price, req.Decimals, req.PriceSequence); err != nil {
			return nil, http.StatusBadRequest, err
		}
		return map[string]interface{}{"accepted": true}, http.StatusAccepted, nil
	})
}

type injectFeeRequest struct {
	FeeAppID uint64 `json:"fee_app_id"`
	FeePct   uint64 `json:"fee_pct"`
	Sequence int64  `json:"sequence"`
}

func (s *Server) handleInjectFee(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.instrument(w, r, "inject_fee", func(ctx context.Context) (interface{}, int, error) {
		var req injectFeeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("decode body: %w", err)
		}
		if err := s.deps.Admin.InjectFee(ctx, req.FeeAppID, req.FeePct, req.Sequence); err != nil {
			return nil, http.StatusBadRequest, err
		}
		return map[string]interface{}{"accepted": true}, http.StatusAccepted, nil
	})
}

type injectManagerRequest struct {
	ManagerAppID uint64 `json:"manager_app_id"`
	Manager      string `json:"manager"`
	Sequence     int64  `json:"sequence"`
}

func (s *Server) handleInjectManager(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.instrument(w, r, "inject_manager", func(ctx context.Context) (interface{}, int, error) {
		var req injectManagerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("decode body: %w", err)
		}
		manager, err := group.ParseAddress(req.Manager)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid manager address: %w", err)
		}
		if err := s.deps.Admin.InjectManager(ctx, req.ManagerAppID, manager, req.Sequence); err != nil {
			return nil, http.StatusBadRequest, err
		}
		return map[string]interface{}{"accepted": true}, http.StatusAccepted, nil
	})
}

// --- plumbing ---

// instrument wraps a handler with latency and error metrics and writes the
// JSON response.
func (s *Server) instrument(
	w http.ResponseWriter,
	r *http.Request,
	endpoint string,
	fn func(ctx context.Context) (interface{}, int, error),
) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	body, status, err := fn(ctx)
	if s.deps.Metrics != nil {
		s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
		s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		if err != nil {
			s.deps.Metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err != nil {
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
		}
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// pagination extracts limit and from_sequence query parameters.
func pagination(r *http.Request) (int, *int64, error) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			return 0, nil, fmt.Errorf("limit must be in [1, 1000]")
		}
		limit = n
	}
	var after *int64
	if raw := r.URL.Query().Get("from_sequence"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return 0, nil, fmt.Errorf("from_sequence must be a non-negative integer")
		}
		after = &n
	}
	return limit, after, nil
}
