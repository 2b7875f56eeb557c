package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/controller"
	"github.com/dgnsrekt/rewardrunner/internal/events"
	"github.com/dgnsrekt/rewardrunner/internal/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Service interface {
	Status(ctx context.Context) (controller.Status, error)
	StartSearches(ctx context.Context) (controller.StartResult, error)
	HandleMessage(ctx context.Context, msg controller.Message) (any, error)
	Catalog(ctx context.Context) (controller.CatalogInfo, error)
}

type healthOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type statusOutput struct {
	Body controller.Status
}

type startOutput struct {
	Status int
	Body   controller.StartResult
}

type messageInput struct {
	Body controller.Message
}

type messageOutput struct {
	Body any
}

type catalogOutput struct {
	Body controller.CatalogInfo
}

// NewServer builds the HTTP handler. broker may be nil, in which case the
// event stream is not mounted.
func NewServer(svc Service, broker *events.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(prometheusMetrics)

	cfg := huma.DefaultConfig("Reward Runner API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Handle("/metrics", promhttp.Handler())
	if broker != nil {
		router.Get("/api/v1/events", events.SSEHandler(broker))
	}

	registerRunHandlers(api, svc)

	return router
}

func registerRunHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Current run status", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			st, err := svc.Status(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &statusOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "start-searches", Method: http.MethodPost, Path: "/api/v1/searches/start", Summary: "Start a search run", Tags: []string{"Runs"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *struct{}) (*startOutput, error) {
			res, err := svc.StartSearches(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &startOutput{Status: http.StatusAccepted, Body: res}
			if res.Status == controller.StartBusy {
				out.Status = http.StatusConflict
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "send-message", Method: http.MethodPost, Path: "/api/v1/message", Summary: "Message protocol (startSearches, getStatus)", Tags: []string{"Runs"}},
		func(ctx context.Context, input *messageInput) (*messageOutput, error) {
			res, err := svc.HandleMessage(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &messageOutput{Body: res}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-catalog", Method: http.MethodGet, Path: "/api/v1/catalog", Summary: "List search terms", Tags: []string{"Catalog"}},
		func(ctx context.Context, input *struct{}) (*catalogOutput, error) {
			info, err := svc.Catalog(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &catalogOutput{Body: info}, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, runner.ErrBusy) {
		return huma.Error409Conflict(err.Error())
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound, cdpcontrol.CodeElementNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeNavigation, cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
