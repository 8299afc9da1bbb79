// Package api is the HTTP ingress: it turns requests into commands on the
// bus and answers reads from the projected account snapshot. Accepting a
// command only means it was published; validation happens in the engine.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/domain"
	"github.com/haandol/event-sourcing-example/readmodel"
	"github.com/haandol/event-sourcing-example/storage"
)

const postCommandMaxSize = 1 << 16

// CommandPublisher puts a command on the account topic under the given key.
type CommandPublisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// AccountReader is the table fallback behind the cache.
type AccountReader interface {
	GetAccount(ctx context.Context, accountID string) (*storage.AccountRecord, error)
}

// SnapshotCache answers reads before the table is consulted.
type SnapshotCache interface {
	Lookup(ctx context.Context, accountID string) (readmodel.AccountSnapshot, bool)
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, publisher CommandPublisher, accounts AccountReader, cache SnapshotCache, logger *log.Logger) {
	e.POST("/accounts", postCreateAccount(publisher, logger))
	e.POST("/accounts/:id/deposit", postTransfer(publisher, logger, domain.NewDepositMoney))
	e.POST("/accounts/:id/withdraw", postTransfer(publisher, logger, domain.NewWithdrawMoney))
	e.GET("/accounts/:id", getAccount(accounts, cache))
	e.GET("/healthz", healthz())
}

type createAccountRequest struct {
	AccountID string `json:"accountId"`
}

type transferRequest struct {
	Amount int64 `json:"amount"`
}

type commandAccepted struct {
	CommandID string `json:"commandId"`
	AccountID string `json:"accountId"`
	Type      string `json:"type"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func postCreateAccount(publisher CommandPublisher, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createAccountRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.AccountID == "" {
			return c.String(http.StatusBadRequest, "accountId is required")
		}
		cmd := domain.NewCreateAccount(req.AccountID)
		return acceptCommand(c, publisher, logger, req.AccountID, cmd)
	}
}

func postTransfer(publisher CommandPublisher, logger *log.Logger, build func(string, int64) domain.Command) echo.HandlerFunc {
	return func(c echo.Context) error {
		accountID := c.Param("id")
		if accountID == "" {
			return c.String(http.StatusBadRequest, "account id is required")
		}
		var req transferRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Amount <= 0 {
			return c.String(http.StatusBadRequest, "amount must be positive")
		}
		cmd := build(accountID, req.Amount)
		return acceptCommand(c, publisher, logger, accountID, cmd)
	}
}

func getAccount(accounts AccountReader, cache SnapshotCache) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID := c.Param("id")
		if snap, ok := cache.Lookup(ctx, accountID); ok {
			return c.JSON(http.StatusOK, snap)
		}
		rec, err := accounts.GetAccount(ctx, accountID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if rec == nil {
			return c.String(http.StatusNotFound, "account not found")
		}
		return c.JSON(http.StatusOK, readmodel.AccountSnapshot{
			AccountID: rec.ID,
			Balance:   rec.Balance,
			Revision:  rec.Version,
			UpdatedAt: rec.UpdatedAt,
		})
	}
}

// acceptCommand publishes the command keyed by the account id so every
// command for one account lands on the same partition, in order.
func acceptCommand(c echo.Context, publisher CommandPublisher, logger *log.Logger, accountID string, cmd domain.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if err := publisher.Publish(c.Request().Context(), accountID, payload); err != nil {
		logger.WithError(err).WithFields(log.Fields{
			"account": accountID,
			"type":    cmd.Type,
		}).Error("publish command")
		return c.String(http.StatusInternalServerError, "failed to accept command")
	}
	logger.WithFields(log.Fields{
		"command": cmd.ID,
		"account": accountID,
		"type":    cmd.Type,
	}).Info("command accepted")
	return c.JSON(http.StatusAccepted, commandAccepted{
		CommandID: cmd.ID,
		AccountID: accountID,
		Type:      cmd.Type,
	})
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
