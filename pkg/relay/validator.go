package relay

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bryanEnzee/skillance-relay/pkg/contract/chatroom"
	"github.com/bryanEnzee/skillance-relay/pkg/log"
)

// RoomReader is the read-only part of the chat contract used before submission.
type RoomReader interface {
	GetChatRoom(ctx context.Context, roomID *big.Int) (chatroom.ChatRoom, error)
	IsAuthorizedSender(ctx context.Context, roomID *big.Int, sender common.Address) (bool, error)
}

type RoomSnapshot struct {
	ID        string `json:"id"`
	BookingID string `json:"bookingId"`
	User      string `json:"user"`
	MentorID  string `json:"mentorId"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
}

func newRoomSnapshot(room chatroom.ChatRoom) *RoomSnapshot {
	str := func(n *big.Int) string {
		if n == nil {
			return "0"
		}
		return n.String()
	}
	return &RoomSnapshot{
		ID:        str(room.Id),
		BookingID: str(room.BookingId),
		User:      room.User.Hex(),
		MentorID:  str(room.MentorId),
		IsActive:  room.IsActive,
		CreatedAt: str(room.CreatedAt),
	}
}

// ValidationResult is either OK or carries the first failed check's reason.
// Diagnostics are kept on both paths.
type ValidationResult struct {
	OK                   bool          `json:"ok"`
	Reason               string        `json:"reason,omitempty"`
	Room                 *RoomSnapshot `json:"room,omitempty"`
	Authorized           *bool         `json:"authorized,omitempty"`
	AuthorizationSkipped bool          `json:"authorizationSkipped,omitempty"`
	Error                string        `json:"error,omitempty"`
}

func reject(res ValidationResult, reason string) ValidationResult {
	res.OK = false
	res.Reason = reason
	return res
}

// Validator runs the read-only pre-flight checks. It never spends gas.
type Validator struct {
	rooms  RoomReader
	logger *log.RelayLogger
}

func NewValidator(rooms RoomReader, logger *log.RelayLogger) *Validator {
	return &Validator{rooms: rooms, logger: logger}
}

// Validate checks, in order: room id, room readability, room activity, sender
// authorization (skipped for privileged senders) and content. The first failure wins.
func (v *Validator) Validate(ctx context.Context, roomID *big.Int, sender common.Address, content string, fromPrivilegedSender bool) ValidationResult {
	var res ValidationResult

	if roomID == nil || roomID.Sign() <= 0 {
		return reject(res, ReasonInvalidRoomID)
	}

	room, err := v.rooms.GetChatRoom(ctx, roomID)
	if err != nil {
		v.logger.Debug("failed to read room", logAttrRoomID, roomID.String(), "error", err)
		res.Error = err.Error()
		return reject(res, ReasonRoomNotFound)
	}
	res.Room = newRoomSnapshot(room)

	if !room.IsActive {
		return reject(res, ReasonRoomNotActive)
	}

	if fromPrivilegedSender {
		res.AuthorizationSkipped = true
	} else {
		authorized, err := v.rooms.IsAuthorizedSender(ctx, roomID, sender)
		if err != nil {
			v.logger.Debug("failed to check authorization", logAttrRoomID, roomID.String(), "error", err)
			res.Error = err.Error()
			return reject(res, ReasonNotAuthorized)
		}
		res.Authorized = &authorized
		if !authorized {
			return reject(res, ReasonNotAuthorized)
		}
	}

	if strings.TrimSpace(content) == "" {
		return reject(res, ReasonEmptyContent)
	}

	res.OK = true
	return res
}
