package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/bryanEnzee/skillance-relay/pkg/api/apierrors"
	"github.com/bryanEnzee/skillance-relay/pkg/log"
	"github.com/bryanEnzee/skillance-relay/pkg/relay"
)

// Relayer runs one batch at a time.
type Relayer interface {
	Relay(ctx context.Context, msgs []relay.Message) (*relay.BatchResult, error)
	Address() common.Address
}

type TxStatusReader interface {
	Status(ctx context.Context, txHash common.Hash) (*relay.TxStatusReport, error)
}

type RelayRequest struct {
	Messages []MessageRequest `json:"messages"`
}

// MessageRequest keeps the raw JSON of fields that accept more than one shape.
type MessageRequest struct {
	RoomID               json.RawMessage `json:"roomId"`
	Content              json.RawMessage `json:"content"`
	FromPrivilegedSender bool            `json:"fromPrivilegedSender"`
	ClientTimestamp      json.RawMessage `json:"clientTimestamp,omitempty"`
}

type Handler struct {
	relayer      Relayer
	status       TxStatusReader
	notReady     error
	maxBatchSize int
	logger       *log.RelayLogger
}

// NewHandler builds the relay handlers. A non-nil notReady makes every relay request
// fail with 500; relayer and status may then be nil. A non-positive maxBatchSize
// accepts batches of any size.
func NewHandler(relayer Relayer, status TxStatusReader, notReady error, maxBatchSize int, logger *log.RelayLogger) *Handler {
	return &Handler{
		relayer:      relayer,
		status:       status,
		notReady:     notReady,
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}
}

func (h *Handler) Relay(c *gin.Context) {
	var req RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(fmt.Errorf("%w: messages must be an array: %v", apierrors.ErrInvalidRequest, err))
		return
	}
	msgs, err := parseMessages(req.Messages, h.maxBatchSize)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if h.notReady != nil {
		h.logger.Error("relay is not configured", h.notReady)
		_ = c.Error(h.notReady)
		return
	}

	// the batch runs to completion even if the caller goes away
	result, err := h.relayer.Relay(context.WithoutCancel(c.Request.Context()), msgs)
	if err != nil {
		_ = c.Error(err)
		return
	}

	code := http.StatusBadRequest
	if result.AnySucceeded() {
		code = http.StatusOK
	}
	c.JSON(code, result)
}

func (h *Handler) TxStatus(c *gin.Context) {
	raw := c.Param("hash")
	bz, err := hexDecode32(raw)
	if err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", apierrors.ErrInvalidRequest, err))
		return
	}
	if h.status == nil {
		_ = c.Error(h.notReadyError())
		return
	}

	report, err := h.status.Status(c.Request.Context(), common.BytesToHash(bz))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"service": "chatrelay",
	}
	if h.notReady != nil {
		body["status"] = "degraded"
		body["error"] = h.notReady.Error()
	} else if h.relayer != nil {
		body["relayAddress"] = h.relayer.Address().Hex()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) notReadyError() error {
	if h.notReady != nil {
		return h.notReady
	}
	return relay.ErrMissingSigningKey
}

// DecodeMessages parses and validates a relay request body.
func DecodeMessages(data []byte, maxBatchSize int) ([]relay.Message, error) {
	var req RelayRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: messages must be an array: %v", apierrors.ErrInvalidRequest, err)
	}
	return parseMessages(req.Messages, maxBatchSize)
}

func parseMessages(reqs []MessageRequest, maxBatchSize int) ([]relay.Message, error) {
	if len(reqs) == 0 {
		return nil, relay.ErrEmptyBatch
	}
	if err := relay.CheckBatchSize(len(reqs), maxBatchSize); err != nil {
		return nil, err
	}
	msgs := make([]relay.Message, 0, len(reqs))
	for i, m := range reqs {
		roomID, err := parseRoomID(m.RoomID)
		if err != nil {
			return nil, fmt.Errorf("%w: messages[%d].roomId %v", apierrors.ErrInvalidRequest, i, err)
		}
		var content string
		if err := json.Unmarshal(m.Content, &content); err != nil || content == "" {
			return nil, fmt.Errorf("%w: messages[%d].content must be a non-empty string", apierrors.ErrInvalidRequest, i)
		}
		ts, err := parseClientTimestamp(m.ClientTimestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: messages[%d].clientTimestamp %v", apierrors.ErrInvalidRequest, i, err)
		}
		msgs = append(msgs, relay.Message{
			RoomID:               roomID,
			Content:              content,
			FromPrivilegedSender: m.FromPrivilegedSender,
			ClientTimestamp:      ts,
		})
	}
	return msgs, nil
}

// parseRoomID accepts a JSON integer or a string of decimal digits.
func parseRoomID(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("is required")
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("is malformed")
		}
		s = strings.TrimSpace(s)
	} else {
		s = string(raw)
	}

	if s == "" || strings.Trim(s, "0123456789") != "" {
		return nil, fmt.Errorf("must be a positive integer")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func parseClientTimestamp(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("is malformed")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("must be a string or a number")
	}
	return n.String(), nil
}

func hexDecode32(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	bz, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash: %v", err)
	}
	if len(bz) != common.HashLength {
		return nil, fmt.Errorf("invalid tx hash length: %d", len(bz))
	}
	return bz, nil
}
