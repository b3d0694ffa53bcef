package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"svcmarket/internal/ledger"
	"svcmarket/internal/model"
	"svcmarket/internal/service"
)

const (
	queueGroup     = "market_group"
	commandTimeout = 10 * time.Second
)

// Command subjects. Each expects a JSON request carrying the caller and
// replies with a Reply.
const (
	SubjectAddListing    = "commands.market.add_listing"
	SubjectRemoveListing = "commands.market.remove_listing"
	SubjectPurchase      = "commands.market.purchase"
	SubjectRefund        = "commands.market.request_refund"
	SubjectUpdateConfig  = "commands.market.update_config"
	SubjectIssue         = "commands.market.issue"
)

type Reply struct {
	Success bool   `json:"success"`
	Seq     uint64 `json:"seq,omitempty"`
	Code    string `json:"code"`
	Error   string `json:"error,omitempty"`
}

// Handler subscribes to NATS command subjects and delegates to the market service.
type Handler struct {
	svc       service.MarketService
	subscribe func(subject, queue string, cb nats.MsgHandler) (subscription, error)

	mu   sync.Mutex
	subs []subscription
}

type subscription interface {
	Drain() error
	Unsubscribe() error
}

func NewHandler(svc service.MarketService, nc *nats.Conn) *Handler {
	return &Handler{
		svc: svc,
		subscribe: func(subject, queue string, cb nats.MsgHandler) (subscription, error) {
			return nc.QueueSubscribe(subject, queue, cb)
		},
	}
}

// Start subscribes to command subjects and blocks until ctx is cancelled (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	// Commands already received while draining still run to completion.
	cmdCtx := context.WithoutCancel(ctx)
	routes := map[string]nats.MsgHandler{
		SubjectAddListing:    command(cmdCtx, SubjectAddListing, h.svc.AddListing),
		SubjectRemoveListing: command(cmdCtx, SubjectRemoveListing, h.svc.RemoveListing),
		SubjectPurchase:      command(cmdCtx, SubjectPurchase, h.svc.Purchase),
		SubjectRefund:        command(cmdCtx, SubjectRefund, h.svc.RequestRefund),
		SubjectUpdateConfig:  command(cmdCtx, SubjectUpdateConfig, h.svc.UpdateConfig),
		SubjectIssue:         command(cmdCtx, SubjectIssue, h.svc.Issue),
	}
	if err := h.subscribeAll(routes); err != nil {
		return err
	}

	slog.Info("NATS command handler is running")

	// Block until context is cancelled.
	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		_ = s.Drain()
	}
	h.subs = nil
	return nil
}

// subscribeAll subscribes every route or none of them.
func (h *Handler) subscribeAll(routes map[string]nats.MsgHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for subject, fn := range routes {
		sub, err := h.subscribe(subject, queueGroup, fn)
		if err != nil {
			for _, s := range h.subs {
				_ = s.Unsubscribe()
			}
			h.subs = nil
			return fmt.Errorf("nats: subscribe %s: %w", subject, err)
		}
		h.subs = append(h.subs, sub)
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	h.subs = nil
	return nil
}

// command adapts a service call to a NATS message handler.
func command[Req any](ctx context.Context, subject string, call func(context.Context, Req) (*model.Result, error)) nats.MsgHandler {
	return func(m *nats.Msg) {
		callCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		reply := handle(callCtx, m.Data, call)
		if !reply.Success && reply.Code == ledger.CodeInternal {
			slog.Error("nats: command failed", "subject", subject, "error", reply.Error)
		}
		if m.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			slog.Error("nats: failed to marshal reply", "subject", subject, "error", err)
			return
		}
		if err := m.Respond(data); err != nil {
			slog.Error("nats: failed to respond", "subject", subject, "error", err)
		}
	}
}

func handle[Req any](ctx context.Context, data []byte, call func(context.Context, Req) (*model.Result, error)) Reply {
	var req Req
	if err := json.Unmarshal(data, &req); err != nil {
		return Reply{Code: "INVALID_REQUEST", Error: "invalid_json"}
	}
	res, err := call(ctx, req)
	if err != nil {
		code := ledger.Code(err)
		if errors.Is(err, service.ErrInvalidRequest) {
			code = "INVALID_REQUEST"
		}
		return Reply{Code: code, Error: err.Error()}
	}
	return Reply{Success: true, Seq: res.Seq, Code: ledger.CodeOK}
}
