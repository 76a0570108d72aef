package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"GardLedger/internal/cdp"
	"GardLedger/internal/config"
	"GardLedger/internal/core"
	"GardLedger/internal/event"
	"GardLedger/internal/group"
	"GardLedger/internal/ingestion"
	"GardLedger/internal/ledger"
	"GardLedger/internal/observability"
	"GardLedger/internal/oracle"
	"GardLedger/internal/persistence"
	"GardLedger/internal/projection"
	"GardLedger/internal/query"
	"GardLedger/internal/server"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger("main")
	logger.Info().Msg("GardLedger starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime.Duration)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	logger.Info().Msg("migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot + replay ---
	startSequence := int64(0)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load snapshot failed")
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		logger.Info().Int64("sequence", snap.Sequence).Msg("loaded snapshot")
	} else {
		logger.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// The persist channel blocks (backpressure); the projection channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.Core.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.Core.ProjectionChanSize)

	// Bridge channels for the workers (avoids import cycles with core)
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.Core.PersistChanSize)
	projectionWorkerChan := make(chan projection.ProjectionOutput, cfg.Core.ProjectionChanSize)
	publishChan := make(chan ingestion.PublishableEvent, 4096)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Deterministic core ---
	protoCfg := core.ProtocolConfig{
		OracleAppID:    cfg.Protocol.OracleAppID,
		OpenFeeAppID:   cfg.Protocol.OpenFeeAppID,
		CloseFeeAppID:  cfg.Protocol.CloseFeeAppID,
		ManagerAppID:   cfg.Protocol.ManagerAppID,
		StableAssetID:  cfg.Protocol.StableAssetID,
		ValidatorAppID: cfg.Protocol.ValidatorAppID,
		Reserve:        cfg.ReserveAddress(),
		FeeSink:        cfg.FeeSinkAddress(),
	}
	deterministicCore := core.NewDeterministicCore(
		startSequence,
		protoCfg,
		persistCoreChan,
		projectionCoreChan,
		dbChecker,
		metrics,
	)

	if snap != nil {
		restoreStateFromSnapshot(logger, deterministicCore, snap)
	}

	if snap != nil && len(snap.IdempotencyKeys) > 0 {
		logger.Info().Int("keys", len(snap.IdempotencyKeys)).Msg("warming idempotency LRU from snapshot")
		deterministicCore.WarmLRU(snap.IdempotencyKeys)
	}

	// --- Event replay ---
	replayCount, err := replayEventsFromLog(ctx, logger, snapMgr, deterministicCore, startSequence)
	if err != nil {
		logger.Fatal().Err(err).Msg("event replay failed")
	}
	if replayCount > 0 {
		logger.Info().
			Int64("replayed", replayCount).
			Int64("sequence", deterministicCore.GetSequence()).
			Msg("event replay complete")
	}

	// Cold start with an empty log: seed the reserve's stable supply so
	// mints have a funded source wallet.
	if snap == nil && replayCount == 0 && cfg.Protocol.ReserveSeedSupply > 0 {
		if err := deterministicCore.SeedReserve(cfg.Protocol.ReserveSeedSupply, time.Now().Unix()); err != nil {
			logger.Fatal().Err(err).Msg("seed reserve")
		}
		logger.Info().Int64("supply", cfg.Protocol.ReserveSeedSupply).Msg("reserve supply seeded")
	}

	// --- State hash verification ---
	if snap != nil && replayCount == 0 {
		var expectedHash [32]byte
		copy(expectedHash[:], snap.StateHash)
		actualHash := deterministicCore.GetStateHash()
		if expectedHash != actualHash {
			logger.Fatal().
				Hex("expected", expectedHash[:]).
				Hex("got", actualHash[:]).
				Msg("state hash mismatch after restore")
		}
		logger.Info().Msg("state hash verified after snapshot restore")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	logger.Info().Str("url", cfg.NATS.URL).Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure nats streams")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	rawEventChan := make(chan ingestion.RawEvent, 4096)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)

	// --- Services ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, position cache disabled")
			redisClient = nil
		}
	}
	queryService := query.NewQueryService(db, redisClient)

	adminEventChan := make(chan event.Event, 4096)
	adminService := ingestion.NewAdminIngestService(adminEventChan)

	apiServer := server.New(server.Deps{
		Query:     queryService,
		Admin:     adminService,
		Snapshots: snapMgr,
		Health:    healthChecker,
		Metrics:   metrics,
		StartTime: time.Now(),
	}, logger)

	// --- Worker goroutines ---
	g, gctx := errgroup.WithContext(ctx)

	persistWorker := persistence.NewPersistenceWorker(
		db, persistWorkerChan, cfg.Core.PersistBatchSize, cfg.Core.PersistFlushTimeout.Duration, metrics)
	g.Go(func() error { return persistWorker.Run(gctx) })

	projWorker := projection.NewProjectionWorker(db, projectionWorkerChan, metrics)
	g.Go(func() error { return projWorker.Run(gctx) })

	g.Go(func() error { return outboundPublisher.Run(gctx) })

	g.Go(func() error {
		bridgeCoreOutputs(gctx, persistCoreChan, projectionCoreChan,
			persistWorkerChan, projectionWorkerChan, publishChan)
		return nil
	})

	g.Go(func() error {
		runIngestionLoop(gctx, logger, rawEventChan, deterministicCore, publishChan)
		return nil
	})

	g.Go(func() error {
		runAdminIngestionLoop(gctx, logger, adminEventChan, deterministicCore)
		return nil
	})

	g.Go(func() error {
		runPeriodicSnapshots(gctx, logger, deterministicCore, snapMgr, int(cfg.Core.SnapshotInterval), metrics)
		return nil
	})

	if err := apiServer.StartGRPC(cfg.Server.GRPCAddr); err != nil {
		logger.Fatal().Err(err).Msg("start grpc")
	}
	if err := apiServer.StartHTTP(cfg.Server.HTTPAddr); err != nil {
		logger.Fatal().Err(err).Msg("start http")
	}

	// Prometheus metrics endpoint
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr}
	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer.Handler = mux
		logger.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	healthChecker.SetReady(true)
	logger.Info().
		Int64("sequence", deterministicCore.GetSequence()).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("GardLedger ready")

	// --- Wait for shutdown signal ---
	groupErr := make(chan error, 1)
	go func() { groupErr <- g.Wait() }()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-groupErr:
		if err != nil {
			logger.Error().Err(err).Msg("worker failed, shutting down")
		}
	}

	healthChecker.SetReady(false)
	cancel()
	natsSubscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	apiServer.Stop(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)

	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	// Final snapshot before exit
	if err := takeSnapshot(shutdownCtx, deterministicCore, snapMgr, metrics); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Msg("final snapshot saved")
	}

	logger.Info().Msg("GardLedger shutdown complete")
}

// bridgeCoreOutputs converts core.CoreOutput to the persistence, projection
// and outbound-publish formats. Keeps core free of worker package imports.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	projectionOut chan<- projection.ProjectionOutput,
	publishOut chan<- ingestion.PublishableEvent,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}

			stateHash := output.Envelope.StateHash[:]
			prevHash := output.Envelope.PrevHash[:]

			pOutput := persistence.CoreOutput{
				EventRow: persistence.EventRow{
					Sequence:       output.Envelope.Sequence,
					EventType:      output.Envelope.EventType.String(),
					IdempotencyKey: output.Envelope.IdempotencyKey,
					Escrow:         output.Envelope.Escrow,
					Payload:        output.Envelope.Payload,
					StateHash:      stateHash,
					PrevHash:       prevHash,
					Timestamp:      output.Envelope.Timestamp,
					SourceSequence: output.Envelope.SourceSequence,
				},
			}

			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOutput.JournalRows = append(pOutput.JournalRows, persistence.JournalRow{
						JournalID:     j.JournalID.String(),
						BatchID:       j.BatchID.String(),
						EventRef:      j.EventRef,
						Sequence:      j.Sequence,
						DebitAccount:  j.DebitAccount.AccountPath(),
						CreditAccount: j.CreditAccount.AccountPath(),
						AssetID:       uint16(j.AssetID),
						Amount:        j.Amount,
						JournalType:   int32(j.JournalType),
						Timestamp:     j.Timestamp,
					})
				}
			}

			persistOut <- pOutput

			decision := ""
			if output.Envelope.EventType == event.EventTypeGroupSubmission {
				decision = "accepted"
			}
			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       output.Envelope.Sequence,
				EventType:      output.Envelope.EventType.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				Decision:       decision,
				Escrow:         output.Envelope.Escrow,
				Payload:        output.Batch,
				StateHash:      stateHash,
				Timestamp:      output.Envelope.Timestamp,
			}:
			default:
				// Drop if publish channel is full
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}

			pOutput := projection.ProjectionOutput{
				Sequence:  output.Envelope.Sequence,
				EventType: output.Envelope.EventType.String(),
				Escrow:    output.Envelope.Escrow,
				Timestamp: output.Envelope.Timestamp.UnixMicro(),
			}

			if output.Outcome != nil {
				pOutput.Position = &projection.PositionDelta{
					Operation:    output.Outcome.Tag,
					Escrow:       output.Outcome.Escrow.String(),
					Owner:        output.Outcome.Owner.String(),
					PositionID:   output.Outcome.PositionID,
					DebtBefore:   output.Outcome.DebtBefore,
					DebtAfter:    output.Outcome.DebtAfter,
					Deleted:      output.Outcome.Deleted,
					StatusKind:   int32(output.Outcome.Status.Kind),
					StatusTime:   output.Outcome.Status.Time,
					ExtAppOptIns: output.Outcome.OptIns,
				}
			}

			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOutput.JournalEntries = append(pOutput.JournalEntries, projection.JournalEntry{
						DebitAccount:  j.DebitAccount.AccountPath(),
						CreditAccount: j.CreditAccount.AccountPath(),
						AssetID:       uint16(j.AssetID),
						Amount:        j.Amount,
						JournalType:   int32(j.JournalType),
					})
				}
			}

			select {
			case projectionOut <- pOutput:
			default:
				// Drop if projection channel is full — rebuild catches up
			}
		}
	}
}

// runIngestionLoop reads raw events from NATS, parses them, and feeds them to
// the core. Messages are acked after the parsed event is handed to the typed
// channel, not after core processing, so backpressure propagates through
// channel blocking instead of AckWait expiry.
func runIngestionLoop(
	ctx context.Context,
	logger zerolog.Logger,
	rawChan <-chan ingestion.RawEvent,
	deterministicCore *core.DeterministicCore,
	publishOut chan<- ingestion.PublishableEvent,
) {
	// Subject-prefix → event-type lookup (subjects end in ".>").
	subjectToType := make(map[string]string)
	for _, sc := range ingestion.DefaultSubjects() {
		prefix := sc.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = sc.EventType
	}

	typedEventChan := make(chan event.Event, 4096)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-rawChan:
				if !ok {
					close(typedEventChan)
					return
				}

				eventType := resolveEventType(raw.Subject, subjectToType)
				if eventType == "" {
					logger.Warn().Str("subject", raw.Subject).Msg("unknown nats subject")
					raw.AckFunc() // ack to avoid a redelivery loop
					continue
				}

				evt, err := ingestion.ParseRawEvent(raw, eventType)
				if err != nil {
					logger.Warn().Err(err).Str("subject", raw.Subject).Msg("parse event failed")
					raw.AckFunc() // unparseable events are acked but not forwarded
					continue
				}

				select {
				case typedEventChan <- evt:
					raw.AckFunc() // ack AFTER successful channel send
				case <-ctx.Done():
					raw.NakFunc()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-typedEventChan:
			if !ok {
				return
			}

			if err := deterministicCore.ProcessEvent(evt); err != nil {
				logger.Warn().
					Err(err).
					Str("type", evt.EventType().String()).
					Str("key", evt.IdempotencyKey()).
					Msg("event rejected")

				// Rejected group submissions are terminal decisions; publish
				// them so downstream consumers see the verdict.
				if evt.EventType() == event.EventTypeGroupSubmission {
					select {
					case publishOut <- ingestion.PublishableEvent{
						EventType:      evt.EventType().String(),
						IdempotencyKey: evt.IdempotencyKey(),
						Decision:       "rejected",
						RejectKind:     group.RejectKind(err),
						Escrow:         evt.EscrowID(),
						Timestamp:      time.Now(),
					}:
					default:
					}
				}
			}
		}
	}
}

// resolveEventType finds the event type for a NATS subject by longest prefix.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = evtType
			}
		}
	}
	return bestType
}

// runAdminIngestionLoop feeds operator-injected events to the core.
func runAdminIngestionLoop(
	ctx context.Context,
	logger zerolog.Logger,
	eventChan <-chan event.Event,
	deterministicCore *core.DeterministicCore,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-eventChan:
			if !ok {
				return
			}
			if err := deterministicCore.ProcessEvent(evt); err != nil {
				logger.Warn().
					Err(err).
					Str("type", evt.EventType().String()).
					Str("key", evt.IdempotencyKey()).
					Msg("admin event rejected")
			}
		}
	}
}

// --- Snapshot restore & replay ---

// restoreStateFromSnapshot converts persistence.SnapshotData into
// core.SnapshotState and restores the core's in-memory state.
func restoreStateFromSnapshot(logger zerolog.Logger, deterministicCore *core.DeterministicCore, snap *persistence.SnapshotData) {
	coreSnap := &core.SnapshotState{
		Sequence:        snap.Sequence,
		Balances:        make(map[ledger.AccountKey]int64),
		Prices:          make(map[uint64]*oracle.PriceState),
		Fees:            snap.Fees,
		Managers:        make(map[uint64]group.Address),
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
	}
	copy(coreSnap.StateHash[:], snap.StateHash)

	for path, balance := range snap.Balances {
		coreSnap.Balances[ledger.ParseAccountPath(path)] = balance
	}

	for _, ps := range snap.Positions {
		escrowAddr, _ := group.ParseAddress(ps.Escrow)
		ownerAddr, _ := group.ParseAddress(ps.Owner)
		coreSnap.Positions = append(coreSnap.Positions, &cdp.Position{
			Escrow:       escrowAddr,
			Owner:        ownerAddr,
			PositionID:   ps.PositionID,
			Debt:         ps.Debt,
			Status:       cdp.Status{Kind: cdp.StatusKind(ps.StatusKind), Time: ps.StatusTime},
			ExtAppOptIns: ps.ExtAppOptIns,
			Version:      ps.Version,
		})
	}

	if snap.Params != nil {
		coreSnap.Params = &cdp.Params{
			PriceOracleAppID: snap.Params.PriceOracleAppID,
			OracleMigrations: snap.Params.OracleMigrations,
			OpenFeeAppID:     snap.Params.OpenFeeAppID,
			CloseFeeAppID:    snap.Params.CloseFeeAppID,
			ManagerAppID:     snap.Params.ManagerAppID,
			StableAssetID:    snap.Params.StableAssetID,
			ValidatorAppID:   snap.Params.ValidatorAppID,
		}
	}

	for appID, ps := range snap.Prices {
		coreSnap.Prices[appID] = &oracle.PriceState{
			Price:     ps.Price,
			Decimals:  ps.Decimals,
			Sequence:  ps.Sequence,
			Timestamp: ps.Timestamp,
		}
	}

	for appID, hexAddr := range snap.Managers {
		addr, err := group.ParseAddress(hexAddr)
		if err != nil {
			continue
		}
		coreSnap.Managers[appID] = addr
	}

	deterministicCore.RestoreFromSnapshot(coreSnap)
	logger.Info().Int64("sequence", snap.Sequence).Msg("restored in-memory state from snapshot")
}

// replayEventsFromLog replays events from the event log starting at
// fromSequence: warm restart replays from the snapshot, cold restart replays
// the whole log.
func replayEventsFromLog(
	ctx context.Context,
	logger zerolog.Logger,
	snapMgr *persistence.SnapshotManager,
	deterministicCore *core.DeterministicCore,
	fromSequence int64,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}
		if len(events) == 0 {
			break
		}

		for _, row := range events {
			typedEvt, err := event.UnmarshalPayload(event.EventTypeFromString(row.EventType), row.Payload)
			if err != nil {
				logger.Warn().
					Err(err).
					Int64("sequence", row.Sequence).
					Str("type", row.EventType).
					Msg("skip undecodable event during replay")
				continue
			}

			if err := deterministicCore.ProcessEvent(typedEvt); err != nil {
				// Duplicates and rejected groups re-reject during replay
				logger.Debug().Err(err).Int64("sequence", row.Sequence).Msg("replay skip")
			}
			totalReplayed++
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// --- Snapshot helpers ---

// runPeriodicSnapshots takes a snapshot every N events.
func runPeriodicSnapshots(
	ctx context.Context,
	logger zerolog.Logger,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	interval int,
	metrics *observability.Metrics,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := deterministicCore.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := deterministicCore.GetSequence()
			if currentSeq-lastSnapshotSeq >= int64(interval) {
				if err := takeSnapshot(ctx, deterministicCore, snapMgr, metrics); err != nil {
					logger.Warn().Err(err).Msg("periodic snapshot failed")
				} else {
					lastSnapshotSeq = currentSeq
					logger.Info().Int64("sequence", currentSeq).Msg("periodic snapshot taken")
				}
			}
		}
	}
}

// takeSnapshot captures the core's in-memory state and persists it.
func takeSnapshot(
	ctx context.Context,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	coreSnap := deterministicCore.CreateSnapshotState()

	snapData := &persistence.SnapshotData{
		Sequence:        coreSnap.Sequence,
		StateHash:       coreSnap.StateHash[:],
		Balances:        make(map[string]int64, len(coreSnap.Balances)),
		Positions:       make([]persistence.PositionSnapshot, 0, len(coreSnap.Positions)),
		Prices:          make(map[uint64]persistence.PriceSnap, len(coreSnap.Prices)),
		Fees:            coreSnap.Fees,
		Managers:        make(map[uint64]string, len(coreSnap.Managers)),
		SequenceState:   coreSnap.SequenceState,
		IdempotencyKeys: coreSnap.IdempotencyKeys,
		CreatedAt:       time.Now(),
	}

	for key, balance := range coreSnap.Balances {
		snapData.Balances[key.AccountPath()] = balance
	}

	for _, pos := range coreSnap.Positions {
		snapData.Positions = append(snapData.Positions, persistence.PositionSnapshot{
			Escrow:       pos.Escrow.String(),
			Owner:        pos.Owner.String(),
			PositionID:   pos.PositionID,
			Debt:         pos.Debt,
			StatusKind:   int32(pos.Status.Kind),
			StatusTime:   pos.Status.Time,
			ExtAppOptIns: pos.ExtAppOptIns,
			Version:      pos.Version,
		})
	}

	if coreSnap.Params != nil {
		snapData.Params = &persistence.ParamsSnapshot{
			PriceOracleAppID: coreSnap.Params.PriceOracleAppID,
			OracleMigrations: coreSnap.Params.OracleMigrations,
			OpenFeeAppID:     coreSnap.Params.OpenFeeAppID,
			CloseFeeAppID:    coreSnap.Params.CloseFeeAppID,
			ManagerAppID:     coreSnap.Params.ManagerAppID,
			StableAssetID:    coreSnap.Params.StableAssetID,
			ValidatorAppID:   coreSnap.Params.ValidatorAppID,
		}
	}

	for appID, ps := range coreSnap.Prices {
		snapData.Prices[appID] = persistence.PriceSnap{
			Price:     ps.Price,
			Decimals:  ps.Decimals,
			Sequence:  ps.Sequence,
			Timestamp: ps.Timestamp,
		}
	}

	for appID, addr := range coreSnap.Managers {
		snapData.Managers[appID] = addr.String()
	}

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Just captured from live state, so mark verified immediately
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		return fmt.Errorf("mark snapshot verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	}

	return nil
}
