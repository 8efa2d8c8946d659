package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/landsift/mindthegap/internal/gap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server exposing run status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		mux.HandleFunc("GET /runs/{name}", func(w http.ResponseWriter, r *http.Request) {
			runName := r.PathValue("name")

			done, err := env.checkpoints.LoadCheckpoint(r.Context(), runName)
			if err != nil {
				zap.L().Error("load checkpoint", zap.String("run", runName), zap.Error(err))
				http.Error(w, `{"error":"checkpoint unavailable"}`, http.StatusInternalServerError)
				return
			}
			failed, err := env.checkpoints.LoadFailed(r.Context(), runName)
			if err != nil {
				zap.L().Error("load failures", zap.String("run", runName), zap.Error(err))
				http.Error(w, `{"error":"checkpoint unavailable"}`, http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]any{
				"run":       runName,
				"completed": len(done),
				"failed":    failed,
			})
		})

		mux.HandleFunc("GET /runs/{name}/gaps", func(w http.ResponseWriter, r *http.Request) {
			if env.data == nil {
				http.Error(w, `{"error":"gaps need the postgres store driver"}`, http.StatusNotImplemented)
				return
			}
			runName := r.PathValue("name")

			done, err := env.checkpoints.LoadCheckpoint(r.Context(), runName)
			if err != nil {
				zap.L().Error("load checkpoint", zap.String("run", runName), zap.Error(err))
				http.Error(w, `{"error":"checkpoint unavailable"}`, http.StatusInternalServerError)
				return
			}
			tileIDs := make([]string, 0, len(done))
			for id := range done {
				tileIDs = append(tileIDs, id)
			}
			sort.Strings(tileIDs)

			gaps, err := env.data.LoadGaps(r.Context(), tileIDs)
			if err != nil {
				zap.L().Error("load gaps", zap.String("run", runName), zap.Error(err))
				http.Error(w, `{"error":"gaps unavailable"}`, http.StatusInternalServerError)
				return
			}
			data, err := gap.MarshalGeoJSON(gaps)
			if err != nil {
				zap.L().Error("marshal gaps", zap.String("run", runName), zap.Error(err))
				http.Error(w, `{"error":"gaps unavailable"}`, http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/geo+json")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
